package node

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/andrc91/camerafleet/internal/wire"
)

// runHeartbeat sends the fixed HEARTBEAT payload to the controller at 1Hz
// until ctx is cancelled. Send errors are
// logged and non-fatal — a missed beacon just shows up as the controller
// marking this node dead, which self-heals once sends resume.
func runHeartbeat(ctx context.Context, conn net.Conn) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.Write([]byte(wire.HeartbeatPayload)); err != nil {
				log.Println("node: heartbeat send error:", err)
			}
		}
	}
}
