// Package transport carries wire messages between editor clients and the
// collaboration session manager. It provides an in-memory connection for
// tests and embedding, a WebSocket server, and an optional Redis bridge
// for relaying room traffic across server nodes.
package transport

import "github.com/slidewire/slidewire/internal/collab/wire"

// Conn is one client connection the session manager can push events to.
// Implementations must tolerate Send after Close by returning an error.
type Conn interface {
	// ID returns the connection identifier, unique per process.
	ID() string

	// Send delivers a message to the client. It must not block the
	// caller indefinitely; slow consumers are disconnected instead.
	Send(msg wire.Message) error

	// Close tears the connection down.
	Close() error
}

// Handler consumes inbound traffic from connections.
// The collaboration manager implements this.
type Handler interface {
	// HandleMessage dispatches one decoded client event.
	HandleMessage(conn Conn, msg wire.Message)

	// Disconnect reports that a connection dropped.
	Disconnect(connID string)
}
