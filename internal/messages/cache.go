package messages

import (
	"sync"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// Cache keeps the last messages per session in memory so handlers read
// conversation context without a database round trip. Entries are bounded
// per session; the oldest messages fall off.
type Cache struct {
	mu         sync.RWMutex
	perSession int
	entries    map[string][]*messaging.Message
}

// NewCache creates a Cache keeping up to perSession messages per session.
func NewCache(perSession int) *Cache {
	if perSession <= 0 {
		perSession = 50
	}
	return &Cache{
		perSession: perSession,
		entries:    make(map[string][]*messaging.Message),
	}
}

// AddMessage appends the message to the session window.
func (c *Cache) AddMessage(sessionID string, msg *messaging.Message) {
	if sessionID == "" || msg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	window := append(c.entries[sessionID], msg)
	if len(window) > c.perSession {
		window = window[len(window)-c.perSession:]
	}
	c.entries[sessionID] = window
}

// GetMessages returns a copy of the session window, oldest first.
func (c *Cache) GetMessages(sessionID string) []*messaging.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	window := c.entries[sessionID]
	out := make([]*messaging.Message, len(window))
	copy(out, window)
	return out
}

// ClearCache drops the session window.
func (c *Cache) ClearCache(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Sessions returns the number of sessions with cached messages.
func (c *Cache) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
