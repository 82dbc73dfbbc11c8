package ws

import (
	"context"
	"sync"

	"goa.design/clue/log"
)

// Hub tracks open WebSocket connections so they can be counted and closed
// on shutdown.
type Hub struct {
	conns map[string]*Connection
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}
}

// NewHub creates a new WebSocket hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.ID()] = conn
			n := len(h.conns)
			h.mu.Unlock()
			log.Debug(ctx, log.KV{K: "msg", V: "connection registered"}, log.KV{K: "conn", V: conn.ID()}, log.KV{K: "open", V: n})

		case conn := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.conns[conn.ID()]; ok && existing == conn {
				delete(h.conns, conn.ID())
			}
			n := len(h.conns)
			h.mu.Unlock()
			log.Debug(ctx, log.KV{K: "msg", V: "connection unregistered"}, log.KV{K: "conn", V: conn.ID()}, log.KV{K: "open", V: n})

		case <-ctx.Done():
			h.CloseAll()
			return
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every open connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		conn.Close()
	}
}
