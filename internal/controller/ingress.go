package controller

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"net"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// DisplayMode selects the per-source render cadence and target size.
type DisplayMode int

const (
	ModeGrid DisplayMode = iota
	ModeExclusive
)

// gridSize and exclusiveSize are the resize targets per mode.
var (
	gridSize      = image.Pt(320, 240)
	exclusiveSize = image.Pt(960, 720)
)

// gridInterval and exclusiveInterval are the per-mode render cadences.
// SetRenderIntervals lets the controller entrypoint override them from
// the environment-driven Config before any ingress traffic starts.
var (
	gridInterval      = 250 * time.Millisecond
	exclusiveInterval = 67 * time.Millisecond
)

// SetRenderIntervals overrides the grid/exclusive render cadences. Not
// safe to call once Listen is running.
func SetRenderIntervals(grid, exclusive time.Duration) {
	gridInterval = grid
	exclusiveInterval = exclusive
}

func (m DisplayMode) interval() time.Duration {
	if m == ModeExclusive {
		return exclusiveInterval
	}
	return gridInterval
}

func (m DisplayMode) targetSize() image.Point {
	if m == ModeExclusive {
		return exclusiveSize
	}
	return gridSize
}

// sourceBuffer holds the latest decoded+resized frame for one node and
// the render-timer bookkeeping for it: latest overwrites, drop don't
// queue. There is no subscriber broadcast here — the render timer itself
// reads and clears the buffer.
type sourceBuffer struct {
	mu           sync.Mutex
	frame        *image.RGBA
	pending      bool // a buffered, unrendered frame is waiting
	lastAccepted time.Time
	timerRunning bool
	mode         DisplayMode
}

// VideoIngress is the controller's single UDP video intake plus the
// per-source render scheduler.
type VideoIngress struct {
	mu      sync.Mutex
	sources map[string]*sourceBuffer // sender IP -> buffer
	known   map[string]bool          // registered node addresses; unknown senders are dropped

	onRender func(addr string, img *image.RGBA) // UI-thread callback: blit into the tile's render target
	dropped  map[string]int
}

// NewVideoIngress returns an ingress for the given set of known node
// addresses; frames from unknown senders are dropped.
func NewVideoIngress(knownAddrs []string) *VideoIngress {
	known := make(map[string]bool, len(knownAddrs))
	for _, a := range knownAddrs {
		known[a] = true
	}
	return &VideoIngress{
		sources: make(map[string]*sourceBuffer),
		known:   known,
		dropped: make(map[string]int),
	}
}

// OnRender registers the UI-thread callback invoked on each render tick.
func (v *VideoIngress) OnRender(fn func(addr string, img *image.RGBA)) {
	v.onRender = fn
}

// SetMode changes the display mode for addr. It does not stop or restart
// the source's render timer: the wait already in progress finishes at the
// old cadence, and the new cadence applies from the following tick. Any
// buffered frame, sized for the old mode, is dropped; later frames are
// resized to the new mode's target.
func (v *VideoIngress) SetMode(addr string, mode DisplayMode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sb, ok := v.sources[addr]; ok {
		sb.mu.Lock()
		sb.mode = mode
		sb.frame = nil // drop the frame sized for the old mode
		sb.mu.Unlock()
	}
}

// Listen binds the UDP video socket and runs the ingress loop until ctx
// is cancelled.
func (v *VideoIngress) Listen(ctx context.Context, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil
		}
		ip := addr.IP.String()
		if !v.known[ip] {
			continue // step 1: drop unknown sender
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		v.handleFrame(ctx, ip, datagram)
	}
}

// handleFrame rate-limits, decodes, resizes, and buffers one incoming
// frame, spawning the source's render timer if one isn't already running.
func (v *VideoIngress) handleFrame(ctx context.Context, addr string, jpegData []byte) {
	sb := v.sourceFor(addr)

	sb.mu.Lock()
	now := time.Now()
	interval := sb.mode.interval()
	if !sb.lastAccepted.IsZero() && now.Sub(sb.lastAccepted) < interval {
		sb.mu.Unlock()
		v.mu.Lock()
		v.dropped[addr]++
		v.mu.Unlock()
		return // step 2: rate-limit before decode
	}
	sb.lastAccepted = now
	mode := sb.mode
	sb.mu.Unlock()

	// Decode and resize off the render-timer goroutine (step 3).
	img, err := decodeAndResize(jpegData, mode.targetSize())
	if err != nil {
		log.Println("controller: video decode error (frame dropped):", err)
		return
	}

	sb.mu.Lock()
	sb.frame = img // step 4: overwrite any prior unread buffer
	sb.pending = true
	needTimer := !sb.timerRunning
	if needTimer {
		sb.timerRunning = true
	}
	sb.mu.Unlock()

	if needTimer { // step 5: at most one render timer per source
		go v.runRenderTimer(ctx, addr, sb)
	}
}

func (v *VideoIngress) sourceFor(addr string) *sourceBuffer {
	v.mu.Lock()
	defer v.mu.Unlock()
	sb, ok := v.sources[addr]
	if !ok {
		sb = &sourceBuffer{mode: ModeGrid}
		v.sources[addr] = sb
	}
	return sb
}

// runRenderTimer is the per-source fixed-interval render timer. It ticks
// at the source's current mode cadence for as long as ctx is live; each
// tick blits the buffered frame (if any) via onRender and clears the
// buffer, then reschedules. Exactly one of these goroutines runs per
// source at a time — handleFrame only spawns one when sb.timerRunning was
// false, preserving the at-most-one-render-timer-per-source invariant.
func (v *VideoIngress) runRenderTimer(ctx context.Context, addr string, sb *sourceBuffer) {
	defer func() {
		sb.mu.Lock()
		sb.timerRunning = false
		sb.mu.Unlock()
	}()

	for {
		sb.mu.Lock()
		interval := sb.mode.interval()
		sb.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		sb.mu.Lock()
		var img *image.RGBA
		if sb.pending {
			img = sb.frame
			sb.pending = false
		}
		sb.mu.Unlock()

		if img != nil && v.onRender != nil {
			v.onRender(addr, img)
		}
	}
}

// DroppedCount returns how many frames have been rate-limited away for
// addr (diagnostic / test hook).
func (v *VideoIngress) DroppedCount(addr string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropped[addr]
}

func decodeAndResize(jpegData []byte, target image.Point) (*image.RGBA, error) {
	src, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, target.X, target.Y))
	if src.Bounds().Dx() == target.X && src.Bounds().Dy() == target.Y {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return dst, nil
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}
