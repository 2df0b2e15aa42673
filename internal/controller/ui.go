package controller

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Outbound message types pushed to every connected UI client. Each has a
// fixed Type field so the JSON consumer always knows exactly which fields
// will be present.

type TileFrameMsg struct {
	Type string `json:"type"` // always "tileFrame"
	Node string `json:"node"`
	JPEG string `json:"jpeg"` // base64-encoded JPEG, re-encoded from the render target
}

type LivenessMsg struct {
	Type  string `json:"type"` // always "liveness"
	Node  string `json:"node"`
	Alive bool   `json:"alive"`
}

type GalleryMsg struct {
	Type  string        `json:"type"` // always "gallery"
	Items []GalleryItem `json:"items"`
}

// inboundMsg is a UI-originated action request, e.g. {"action":"startAll"}
// or {"action":"capture","node":"rep1"}. Node is empty for fleet-wide
// actions (startAll/stopAll/captureAll).
type inboundMsg struct {
	Action string `json:"action"`
	Node   string `json:"node"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is the controller's websocket UI push layer: it fans out tile
// frame updates, liveness transitions, and gallery batches to every
// connected browser client. The Push methods may be called from any
// goroutine; each message is queued on every client's send channel and
// written by that client's write pump.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	onAction func(action, node string) // UI-originated action, wired by the controller to the emitter
}

// NewHub returns an empty client registry.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// OnAction registers the callback invoked for each inbound UI action
// message, mirroring the OnRender/OnBatch/OnChange push-direction wiring.
func (h *Hub) OnAction(fn func(action, node string)) {
	h.onAction = fn
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	log.Println("controller: ui client registered, total:", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Println("controller: ui client unregistered, total:", len(h.clients))
	}
}

func (h *Hub) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("controller: ui marshal error:", err)
		return
	}
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		select {
		case c.send <- data:
		default: // slow client drops a frame rather than blocking the pushing goroutine
		}
	}
}

// PushTileFrame re-encodes img as JPEG and broadcasts a tileFrame message
// for node. Wired as VideoIngress's OnRender callback.
func (h *Hub) PushTileFrame(node string, img *image.RGBA) {
	var buf []byte
	w := &sliceWriter{buf: &buf}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 85}); err != nil {
		log.Println("controller: ui tile encode error:", err)
		return
	}
	h.broadcast(TileFrameMsg{
		Type: "tileFrame",
		Node: node,
		JPEG: base64.StdEncoding.EncodeToString(buf),
	})
}

// PushLiveness broadcasts a liveness transition. Wired as
// HeartbeatTracker's OnChange callback.
func (h *Hub) PushLiveness(node string, alive bool) {
	h.broadcast(LivenessMsg{Type: "liveness", Node: node, Alive: alive})
}

// PushGallery broadcasts a batch of gallery updates. Wired as
// StillIngress's OnBatch callback.
func (h *Hub) PushGallery(items []GalleryItem) {
	h.broadcast(GalleryMsg{Type: "gallery", Items: items})
}

// ServeWS upgrades r to a websocket and pumps outbound messages to it
// until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("controller: ui upgrade error:", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

// readPump parses each inbound message as an action request and dispatches
// it via onAction; it also detects client disconnects and drives the close
// handshake.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Println("controller: ui: bad inbound message:", err)
			continue
		}
		if msg.Action != "" && h.onAction != nil {
			h.onAction(msg.Action, msg.Node)
		}
	}
}

const writeWait = 10 * time.Second

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// sliceWriter adapts a *[]byte to io.Writer for jpeg.Encode.
type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
