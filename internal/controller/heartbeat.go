// Package controller implements the controller-side ingest and display
// scheduler: heartbeat tracking, video ingress + per-source render
// scheduler, still ingress, command emitter, and UI push.
package controller

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/andrc91/camerafleet/internal/wire"
)

// HeartbeatTracker records the last heartbeat wall-clock time per node
// address and periodically sweeps for liveness (10s liveness window,
// 3s poll cadence).
type HeartbeatTracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time

	onChange func(addr string, alive bool)
}

// NewHeartbeatTracker returns an empty tracker.
func NewHeartbeatTracker() *HeartbeatTracker {
	return &HeartbeatTracker{lastSeen: make(map[string]time.Time)}
}

// OnChange registers a callback invoked whenever a node's liveness
// changes (used to push a single UI update for the status indicator).
func (h *HeartbeatTracker) OnChange(fn func(addr string, alive bool)) {
	h.onChange = fn
}

// Listen binds a UDP socket on the heartbeat port and records every
// sender's arrival time until ctx is cancelled.
func (h *HeartbeatTracker) Listen(ctx context.Context, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil // socket closed
		}
		if string(buf[:n]) != wire.HeartbeatPayload {
			continue
		}
		h.record(addr.IP.String())
	}
}

func (h *HeartbeatTracker) record(addr string) {
	h.mu.Lock()
	_, wasAlive := h.lastSeen[addr]
	h.lastSeen[addr] = time.Now()
	h.mu.Unlock()
	if !wasAlive && h.onChange != nil {
		h.onChange(addr, true)
	}
}

// RunLivenessSweep runs a poll every HeartbeatPollIntervalSeconds,
// marking nodes alive/dead and firing onChange on transitions, until ctx
// is cancelled.
func (h *HeartbeatTracker) RunLivenessSweep(ctx context.Context, nodes []string) {
	interval := wire.HeartbeatPollIntervalSeconds * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	alive := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		alive[n] = false
	}

	expected := time.Now().Add(interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			selfTestStall(interval, now.Sub(expected)+interval)
			expected = now.Add(interval)
			h.mu.Lock()
			snapshot := make(map[string]time.Time, len(h.lastSeen))
			for k, v := range h.lastSeen {
				snapshot[k] = v
			}
			h.mu.Unlock()

			for _, addr := range nodes {
				last, seen := snapshot[addr]
				isAlive := seen && now.Sub(last) < wire.LivenessWindowSeconds*time.Second
				if isAlive != alive[addr] {
					alive[addr] = isAlive
					if h.onChange != nil {
						h.onChange(addr, isAlive)
					}
				}
			}
		}
	}
}

// selfTestStall logs a UI stall if the UI-facing tick is delayed more
// than 300ms.
func selfTestStall(expected, actual time.Duration) {
	if actual-expected > 300*time.Millisecond {
		log.Printf("controller: ui stall detected: expected tick at %v, fired at %v", expected, actual)
	}
}
