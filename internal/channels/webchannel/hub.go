package webchannel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Hub tracks the live websocket connection per (tenant, channel user). A
// reconnect replaces the previous connection.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*websocket.Conn)}
}

func key(tenantID, channelUserID string) string {
	return tenantID + ":" + channelUserID
}

// Attach registers a connection, closing any previous one for the same user.
func (h *Hub) Attach(tenantID, channelUserID string, conn *websocket.Conn) {
	k := key(tenantID, channelUserID)
	h.mu.Lock()
	prev := h.conns[k]
	h.conns[k] = conn
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Detach removes the connection if it is still the current one for the user.
func (h *Hub) Detach(tenantID, channelUserID string, conn *websocket.Conn) {
	k := key(tenantID, channelUserID)
	h.mu.Lock()
	if h.conns[k] == conn {
		delete(h.conns, k)
	}
	h.mu.Unlock()
}

// Push writes a text frame to the user's connection. It reports false when
// the user is not connected or the write fails.
func (h *Hub) Push(tenantID, channelUserID string, payload []byte) bool {
	h.mu.RLock()
	conn := h.conns[key(tenantID, channelUserID)]
	h.mu.RUnlock()
	if conn == nil {
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.Detach(tenantID, channelUserID, conn)
		conn.Close()
		return false
	}
	return true
}

// Connected reports whether the user currently has a live connection.
func (h *Hub) Connected(tenantID, channelUserID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[key(tenantID, channelUserID)]
	return ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
