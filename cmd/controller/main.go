// Command controller runs the controller process: it ingests preview
// video and heartbeats from the fleet, tracks liveness, accepts still
// uploads, multiplexes everything to the browser UI over a websocket, and
// dispatches commands back to nodes.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrc91/camerafleet/internal/config"
	"github.com/andrc91/camerafleet/internal/controller"
)

func main() {
	env := config.Load()

	var reg *config.Registry
	if _, err := os.Stat(env.RegistryPath); err == nil {
		reg = config.LoadRegistry(env.RegistryPath)
	} else {
		log.Println("controller: no registry file at", env.RegistryPath, "- using default roster")
		reg = config.DefaultRegistry()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := controller.New(controller.Config{
		Registry:             reg,
		CapturedBase:         env.CapturedBaseDir,
		CapturedFallback:     env.CapturedFallback,
		HTTPAddr:             env.UIAddr,
		GridInterval:         env.GridInterval,
		ExclusiveInterval:    env.ExclusiveInterval,
		GalleryBatchInterval: env.GalleryBatchInterval,
		GalleryBatchMax:      env.GalleryBatchMax,
	})

	log.Println("controller: starting with", len(reg.Nodes), "registered nodes")
	c.Run(ctx)
}
