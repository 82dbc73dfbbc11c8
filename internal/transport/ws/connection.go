package ws

import (
	"errors"
	"sync"

	"codementor/internal/model"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one WebSocket client. Send never blocks: frames are queued
// for the write pump and dropped when the buffer is full.
type Connection struct {
	id   string
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewConnection(id string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 256
	}
	return &Connection{
		id:   id,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Send(msg model.Outbound) error {
	data, err := model.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting frames. Frames already queued are still flushed
// before the close frame is written.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} { return c.done }
