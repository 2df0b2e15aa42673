// Package node wires together the per-node components: settings store,
// camera arbiter, preview loop, still handler, command listener, and
// heartbeat emitter.
package node

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/andrc91/camerafleet/internal/arbiter"
	"github.com/andrc91/camerafleet/internal/sensor"
	"github.com/andrc91/camerafleet/internal/settings"
	"github.com/andrc91/camerafleet/internal/wire"
)

// Config describes everything one node process needs to start.
type Config struct {
	DeviceName   string
	SettingsDir  string
	Sensor       sensor.Sensor
	Profile      wire.PortProfile
	ControllerIP string
	OnShutdown   func(reboot bool)
	OnSetTime    func(timestamp string)
}

// Node is one running node process's worth of wired components.
type Node struct {
	cfg      Config
	settings *settings.Cache
	arb      *arbiter.Arbiter
	quality  atomic.Int32

	controlConn   *net.UDPConn
	videoConn     net.Conn
	heartbeatConn net.Conn

	listener *commandListener
}

// New wires a Node from cfg. It binds the control-port listener and
// dials the controller's video/heartbeat ports, but does not yet start
// any loops — call Run for that.
func New(cfg Config) (*Node, error) {
	store := settings.NewStore(cfg.SettingsDir, cfg.DeviceName)
	cache, err := settings.NewCache(store)
	if err != nil {
		return nil, fmt.Errorf("node: load settings: %w", err)
	}

	controlAddr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Profile.Control}
	controlConn, err := net.ListenUDP("udp", controlAddr)
	if err != nil {
		return nil, fmt.Errorf("node: bind control port %d: %w", cfg.Profile.Control, err)
	}

	videoConn, err := net.Dial("udp", fmt.Sprintf("%s:%d", cfg.ControllerIP, wire.ControllerVideoPort))
	if err != nil {
		controlConn.Close()
		return nil, fmt.Errorf("node: dial video port: %w", err)
	}

	heartbeatConn, err := net.Dial("udp", fmt.Sprintf("%s:%d", cfg.ControllerIP, wire.ControllerHeartbeatPort))
	if err != nil {
		controlConn.Close()
		videoConn.Close()
		return nil, fmt.Errorf("node: dial heartbeat port: %w", err)
	}

	n := &Node{
		cfg:           cfg,
		settings:      cache,
		controlConn:   controlConn,
		videoConn:     videoConn,
		heartbeatConn: heartbeatConn,
	}
	n.quality.Store(int32(cache.Current().JPEGQuality))

	still := newStillHandler(cache, fmt.Sprintf("%s:%d", cfg.ControllerIP, wire.ControllerStillPort))

	n.arb = arbiter.New(arbiter.Config{
		Sensor: cfg.Sensor,
		RunPreview: func(sens sensor.Sensor) func(time.Duration) bool {
			loop, err := newPreviewLoop(sens, cache, videoConn, &n.quality)
			if err != nil {
				log.Println("node: preview start error:", err)
				return func(time.Duration) bool { return true }
			}
			go loop.run()
			return loop.stop
		},
		CaptureStill: still.capture,
	})

	n.listener = newCommandListener(controlConn, n.arb, cache, &n.quality, cfg.OnSetTime, cfg.OnShutdown)
	return n, nil
}

// Run starts the command listener and heartbeat emitter and blocks until
// ctx is cancelled, then tears down cleanly.
func (n *Node) Run(ctx context.Context) {
	go n.listener.serve()
	go runHeartbeat(ctx, n.heartbeatConn)

	<-ctx.Done()
	log.Println("node: shutting down")
	n.arb.StopPreview()
	n.controlConn.Close()
	n.videoConn.Close()
	n.heartbeatConn.Close()
}

// Arbiter exposes the arbiter for tests and for a future command surface
// beyond the UDP listener (e.g. a local CLI).
func (n *Node) Arbiter() *arbiter.Arbiter { return n.arb }
