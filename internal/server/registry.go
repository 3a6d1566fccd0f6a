package server

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Registry tracks live WebSocket connections. All mutation goes
// through Add and Remove so the count is always consistent.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*websocket.Conn)}
}

// Add registers the connection and returns its id.
func (r *Registry) Add(c *websocket.Conn) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()
	return id
}

// Remove unregisters the connection. Unknown ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
