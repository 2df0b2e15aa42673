package controller

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/andrc91/camerafleet/internal/config"
	"github.com/andrc91/camerafleet/internal/wire"
)

// shutdownRetries and shutdownRetryDelay implement idempotent
// retransmission for SHUTDOWN/REBOOT, since UDP delivery isn't guaranteed.
const (
	shutdownRetries    = 3
	shutdownRetryDelay = 150 * time.Millisecond
)

// Emitter is the controller's non-blocking command sender:
// each Send dispatches on its own goroutine so the UI thread never blocks
// on network I/O.
type Emitter struct {
	registry *config.Registry
}

// NewEmitter returns an emitter resolving node names via reg.
func NewEmitter(reg *config.Registry) *Emitter {
	return &Emitter{registry: reg}
}

// Send dispatches the ASCII command cmd to node asynchronously. Unknown
// node names are logged and dropped.
func (e *Emitter) Send(node, cmd string) {
	go e.send(node, cmd)
}

func (e *Emitter) send(node, cmd string) {
	entry, err := e.registry.Find(node)
	if err != nil {
		log.Printf("controller: emitter: %v", err)
		return
	}
	profile := entry.Profile()
	parsed := wire.ParseCommand(cmd)

	switch parsed.Kind {
	case wire.CmdStartStream, wire.CmdStopStream, wire.CmdRestartStreamWithSettings:
		e.sendOnce(entry.Address, videoControlPort(profile, entry.Local), cmd)
	case wire.CmdShutdown, wire.CmdReboot:
		for i := 0; i < shutdownRetries; i++ {
			e.sendOnce(entry.Address, profile.Control, cmd)
			if i < shutdownRetries-1 {
				time.Sleep(shutdownRetryDelay)
			}
		}
	default:
		e.sendOnce(entry.Address, profile.Control, cmd)
	}
}

// videoControlPort picks the video_control port, except for the local node
// whose command listener binds only control.
func videoControlPort(profile wire.PortProfile, local bool) int {
	if local {
		return profile.Control
	}
	return profile.VideoControl
}

func (e *Emitter) sendOnce(addr string, port int, cmd string) {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		log.Printf("controller: emitter: dial %s:%d: %v", addr, port, err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(cmd)); err != nil {
		log.Printf("controller: emitter: write %s:%d: %v", addr, port, err)
	}
}
