package controller

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/andrc91/camerafleet/internal/config"
	"github.com/andrc91/camerafleet/internal/wire"
)

// Config describes everything the controller process needs to start.
type Config struct {
	Registry         *config.Registry
	CapturedBase     string // e.g. "captured_images"
	CapturedFallback string // e.g. "captured_images_local"
	HTTPAddr         string // e.g. ":8080"

	GridInterval         time.Duration // 0 means keep the package default (250ms)
	ExclusiveInterval    time.Duration // 0 means keep the package default (67ms)
	GalleryBatchInterval time.Duration // 0 means keep the package default (250ms)
	GalleryBatchMax      int           // 0 means keep the package default (3)
}

// Controller is the controller process's wired components: video ingress
// and display scheduler, still ingress and gallery queue, heartbeat
// tracker, command emitter, and UI push layer.
type Controller struct {
	cfg Config

	Video     *VideoIngress
	Still     *StillIngress
	Heartbeat *HeartbeatTracker
	Emitter   *Emitter
	Hub       *Hub

	httpServer *http.Server
}

// New wires a Controller from cfg. It does not yet bind any sockets —
// call Run for that.
func New(cfg Config) *Controller {
	if cfg.GridInterval > 0 || cfg.ExclusiveInterval > 0 {
		grid, exclusive := gridInterval, exclusiveInterval
		if cfg.GridInterval > 0 {
			grid = cfg.GridInterval
		}
		if cfg.ExclusiveInterval > 0 {
			exclusive = cfg.ExclusiveInterval
		}
		SetRenderIntervals(grid, exclusive)
	}
	if cfg.GalleryBatchInterval > 0 || cfg.GalleryBatchMax > 0 {
		interval, max := galleryBatchInterval, galleryBatchMax
		if cfg.GalleryBatchInterval > 0 {
			interval = cfg.GalleryBatchInterval
		}
		if cfg.GalleryBatchMax > 0 {
			max = cfg.GalleryBatchMax
		}
		SetGalleryBatching(interval, max)
	}

	addrs := make([]string, 0, len(cfg.Registry.Nodes))
	for _, n := range cfg.Registry.Nodes {
		addrs = append(addrs, n.Address)
	}
	resolveName := addressResolver(cfg.Registry)

	c := &Controller{
		cfg:       cfg,
		Video:     NewVideoIngress(addrs),
		Still:     NewStillIngress(cfg.CapturedBase, cfg.CapturedFallback, resolveName),
		Heartbeat: NewHeartbeatTracker(),
		Emitter:   NewEmitter(cfg.Registry),
		Hub:       NewHub(),
	}

	c.Video.OnRender(c.Hub.PushTileFrame)
	c.Still.OnBatch(c.Hub.PushGallery)
	c.Heartbeat.OnChange(c.Hub.PushLiveness)
	c.Hub.OnAction(c.handleUIAction)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.Hub.ServeWS)
	c.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	return c
}

// addressResolver builds the reverse address->logical-name lookup used by
// the still ingress to label uploads.
func addressResolver(reg *config.Registry) func(addr string) (string, bool) {
	byAddr := make(map[string]string, len(reg.Nodes))
	for _, n := range reg.Nodes {
		byAddr[n.Address] = n.Name
	}
	return func(addr string) (string, bool) {
		name, ok := byAddr[addr]
		return name, ok
	}
}

// uiAction describes how one UI action name translates to an emitted
// command: the ASCII command itself, and whether it addresses every
// registered node rather than a single one named in the message.
type uiAction struct {
	cmd string
	all bool
}

var uiActions = map[string]uiAction{
	"startAll":   {cmd: "START_STREAM", all: true},
	"stopAll":    {cmd: "STOP_STREAM", all: true},
	"captureAll": {cmd: "CAPTURE_STILL", all: true},
	"start":      {cmd: "START_STREAM"},
	"stop":       {cmd: "STOP_STREAM"},
	"capture":    {cmd: "CAPTURE_STILL"},
}

// handleUIAction is the Hub's inbound-message callback: it resolves a UI
// action to an ASCII command and sends it via the emitter, either to every
// registered node (startAll/stopAll/captureAll) or to the single node named
// in the message.
func (c *Controller) handleUIAction(action, node string) {
	a, ok := uiActions[action]
	if !ok {
		log.Println("controller: ui: unrecognised action:", action)
		return
	}
	if !a.all {
		if node == "" {
			log.Println("controller: ui: action", action, "requires a node")
			return
		}
		c.Emitter.Send(node, a.cmd)
		return
	}
	for _, n := range c.cfg.Registry.Nodes {
		c.Emitter.Send(n.Name, a.cmd)
	}
}

// Run starts every ingress, the liveness sweep, and the HTTP/UI server,
// and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	nodeAddrs := make([]string, 0, len(c.cfg.Registry.Nodes))
	for _, n := range c.cfg.Registry.Nodes {
		nodeAddrs = append(nodeAddrs, n.Address)
	}

	go func() {
		if err := c.Video.Listen(ctx, wire.ControllerVideoPort); err != nil {
			log.Fatal("controller: video ingress error: ", err)
		}
	}()
	go func() {
		if err := c.Still.Listen(ctx, wire.ControllerStillPort); err != nil {
			log.Fatal("controller: still ingress error: ", err)
		}
	}()
	go func() {
		if err := c.Heartbeat.Listen(ctx, wire.ControllerHeartbeatPort); err != nil {
			log.Fatal("controller: heartbeat listen error: ", err)
		}
	}()
	go c.Heartbeat.RunLivenessSweep(ctx, nodeAddrs)

	go func() {
		log.Println("controller: ui server listening on", c.cfg.HTTPAddr)
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Println("controller: ui server error:", err)
		}
	}()

	<-ctx.Done()
	log.Println("controller: shutting down")
	c.httpServer.Shutdown(context.Background())
}
