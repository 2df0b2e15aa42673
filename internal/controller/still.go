package controller

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxStillBytes bounds a single upload's buffer against a sender that
// never closes its connection.
const maxStillBytes = 64 << 20

// galleryBatchInterval and galleryBatchMax bound the UI's gallery update
// cadence: at most one batch every 250ms, at most 3 items per batch.
// SetGalleryBatching lets the controller entrypoint override them from the
// environment-driven Config before any ingress traffic starts.
var (
	galleryBatchInterval = 250 * time.Millisecond
	galleryBatchMax      = 3
)

// SetGalleryBatching overrides the gallery batch cadence/size. Not safe to
// call once Listen is running.
func SetGalleryBatching(interval time.Duration, max int) {
	galleryBatchInterval = interval
	galleryBatchMax = max
}

// GalleryItem is one still-capture event queued for the UI.
type GalleryItem struct {
	Node string
	Path string
	At   time.Time
}

// StillIngress is the controller's TCP still-upload listener plus the
// batched gallery-update queue feeding the UI.
type StillIngress struct {
	baseDir     string
	fallbackDir string
	resolveName func(addr string) (string, bool)

	mu      sync.Mutex
	pending []GalleryItem
	onBatch func([]GalleryItem)
}

// NewStillIngress returns a still ingress writing under baseDir (falling
// back to fallbackDir when baseDir is unwritable), resolving sender
// addresses to logical node names via resolveName.
func NewStillIngress(baseDir, fallbackDir string, resolveName func(addr string) (string, bool)) *StillIngress {
	return &StillIngress{
		baseDir:     baseDir,
		fallbackDir: fallbackDir,
		resolveName: resolveName,
	}
}

// OnBatch registers the UI-thread callback invoked with each gallery batch.
func (s *StillIngress) OnBatch(fn func([]GalleryItem)) {
	s.onBatch = fn
}

// Listen binds the TCP still-upload socket and accepts connections until
// ctx's cancellation closes the listener.
func (s *StillIngress) Listen(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("controller: still listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.runBatcher(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed
		}
		go s.handleConn(conn)
	}
}

// handleConn processes one accepted connection: read until EOF (bounded),
// resolve the logical name, write under the dated directory layout, and
// enqueue a gallery-update event.
func (s *StillIngress) handleConn(conn net.Conn) {
	defer conn.Close()

	remoteIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		remoteIP = conn.RemoteAddr().String()
	}
	name, ok := s.resolveName(remoteIP)
	if !ok {
		log.Printf("controller: still: unrecognized sender %s", remoteIP)
		return
	}

	data, err := io.ReadAll(io.LimitReader(conn, maxStillBytes+1))
	if err != nil {
		log.Printf("controller: still: read from %s (%s): %v", name, remoteIP, err)
		return
	}
	if len(data) > maxStillBytes {
		log.Printf("controller: still: upload from %s exceeded %d bytes, dropped", name, maxStillBytes)
		return
	}

	now := time.Now()
	path, err := s.write(name, now, data)
	if err != nil {
		log.Printf("controller: still: write for %s: %v", name, err)
		return
	}

	s.enqueue(GalleryItem{Node: name, Path: path, At: now})
}

// write places the JPEG at
// <base>/<YYYY-MM-DD>/<logical_name>/<YYYYMMDD_HHMMSS>.jpg, falling back
// to fallbackDir if base is unwritable.
func (s *StillIngress) write(name string, at time.Time, data []byte) (string, error) {
	rel := filepath.Join(at.Format("2006-01-02"), name, at.Format("20060102_150405")+".jpg")

	path, err := s.writeUnder(s.baseDir, rel, data)
	if err == nil {
		return path, nil
	}
	log.Printf("controller: still: base dir %s unwritable (%v), falling back to %s", s.baseDir, err, s.fallbackDir)
	return s.writeUnder(s.fallbackDir, rel, data)
}

func (s *StillIngress) writeUnder(base, rel string, data []byte) (string, error) {
	full := filepath.Join(base, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return full, nil
}

func (s *StillIngress) enqueue(item GalleryItem) {
	s.mu.Lock()
	s.pending = append(s.pending, item)
	s.mu.Unlock()
}

// runBatcher drains the pending queue at most once per galleryBatchInterval,
// at most galleryBatchMax items per batch, until ctx is cancelled.
func (s *StillIngress) runBatcher(ctx context.Context) {
	ticker := time.NewTicker(galleryBatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := s.drain(galleryBatchMax)
			if len(batch) > 0 && s.onBatch != nil {
				s.onBatch(batch)
			}
		}
	}
}

func (s *StillIngress) drain(max int) []GalleryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	n := max
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	out := make([]GalleryItem, n)
	copy(out, batch)
	return out
}
