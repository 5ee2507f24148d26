// Package ws pushes application state updates to connected clients.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks WebSocket connections and fans state updates out to all of
// them. There is a single stream; clients get every broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[*websocket.Conn]struct{}
	// wmu serializes writes; gorilla allows one concurrent writer per conn
	wmu sync.Mutex
}

type clientMsg struct {
	Type string `json:"type"`
}

// NewHub creates a Hub with a custom origin policy.
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// HandleWS upgrades the request and serves the connection until the client
// goes away. Incoming messages are ignored except pings.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	for {
		var msg clientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "ping" {
			h.wmu.Lock()
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
			h.wmu.Unlock()
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Broadcast sends v to every connected client. Connections that fail to
// take the write are dropped; their read loops close them.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(v)
	if err != nil {
		return
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			h.mu.Lock()
			delete(h.conns, c)
			h.mu.Unlock()
		}
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
