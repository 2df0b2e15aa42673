package controller

import (
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestHubBroadcastsLivenessToConnectedClient(t *testing.T) {
	h := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond) // let registration complete

	h.PushLiveness("rep1", true)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg LivenessMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "liveness" || msg.Node != "rep1" || !msg.Alive {
		t.Errorf("got %+v", msg)
	}
}

func TestHubPushTileFrameEncodesValidJPEG(t *testing.T) {
	h := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	h.PushTileFrame("rep1", img)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg TileFrameMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "tileFrame" || msg.Node != "rep1" || msg.JPEG == "" {
		t.Errorf("got %+v", msg)
	}
}

func TestHubDispatchesInboundActionToOnAction(t *testing.T) {
	h := NewHub()
	type call struct{ action, node string }
	got := make(chan call, 1)
	h.OnAction(func(action, node string) { got <- call{action, node} })

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	if err := conn.WriteJSON(inboundMsg{Action: "capture", Node: "rep1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.action != "capture" || c.node != "rep1" {
			t.Errorf("got %+v, want {capture rep1}", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onAction was not invoked")
	}
}

func TestHubUnregistersOnClientDisconnect(t *testing.T) {
	h := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server)
	time.Sleep(50 * time.Millisecond)
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}

	conn.Close()
	time.Sleep(200 * time.Millisecond)
	h.mu.RLock()
	n = len(h.clients)
	h.mu.RUnlock()
	if n != 0 {
		t.Errorf("clients = %d after disconnect, want 0", n)
	}
}
