package transport

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/slidewire/slidewire/internal/collab/wire"
)

// ErrConnClosed is returned by Send on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// MemoryConn is an in-process connection that records every message it
// receives. Used by tests and by hosts embedding the session manager
// directly.
type MemoryConn struct {
	id string

	mu     sync.Mutex
	msgs   []wire.Message
	closed bool
	broken bool
}

// NewMemoryConn creates a connection with a generated ID.
func NewMemoryConn() *MemoryConn {
	return &MemoryConn{id: uuid.NewString()}
}

// NewMemoryConnID creates a connection with a fixed ID.
func NewMemoryConnID(id string) *MemoryConn {
	return &MemoryConn{id: id}
}

// ID returns the connection identifier.
func (c *MemoryConn) ID() string { return c.id }

// Send records the message.
func (c *MemoryConn) Send(msg wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.broken {
		return ErrConnClosed
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

// Close marks the connection closed.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Break makes subsequent sends fail without closing.
// Simulates a half-dead peer in failure-isolation tests.
func (c *MemoryConn) Break() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// Messages returns a copy of everything received so far.
func (c *MemoryConn) Messages() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// MessagesByEvent returns received messages matching an event name.
func (c *MemoryConn) MessagesByEvent(event string) []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []wire.Message
	for _, m := range c.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Reset discards recorded messages.
func (c *MemoryConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}
