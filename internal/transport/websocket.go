package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/slidewire/slidewire/internal/collab/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// sendBuffer bounds the per-connection outbound queue. A client that
	// cannot drain it is disconnected rather than allowed to stall the
	// room's broadcasts.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket connection to the Conn interface.
// Writes are funneled through a single pump goroutine; gorilla websockets
// allow only one concurrent writer.
type wsConn struct {
	id   string
	sock *websocket.Conn
	log  *slog.Logger

	send chan wire.Message

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(sock *websocket.Conn, log *slog.Logger) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		sock: sock,
		log:  log,
		send: make(chan wire.Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *wsConn) ID() string { return c.id }

// Send queues a message for the write pump.
func (c *wsConn) Send(msg wire.Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- msg:
		return nil
	default:
		// Queue full: the peer is too slow, drop it.
		c.log.Warn("outbound queue full, dropping connection", "conn", c.id)
		_ = c.Close()
		return ErrConnClosed
	}
}

// Close shuts the connection down once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
	return nil
}

// writePump serializes outbound writes and keeps the connection alive
// with pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound envelopes and hands them to the handler.
// Returns when the peer disconnects.
func (c *wsConn) readPump(handler Handler) {
	defer func() {
		_ = c.Close()
		handler.Disconnect(c.id)
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg wire.Message
		if err := c.sock.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", "conn", c.id, "error", err)
			}
			return
		}
		handler.HandleMessage(c, msg)
	}
}

// Server exposes the collaboration protocol over WebSocket.
type Server struct {
	handler Handler
	log     *slog.Logger
	router  *mux.Router
}

// NewServer wires a WebSocket endpoint to a session handler.
func NewServer(handler Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		handler: handler,
		log:     log,
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc("/ws", s.handleWS)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newWSConn(sock, s.log)
	s.log.Info("client connected", "conn", conn.ID(), "remote", r.RemoteAddr)

	go conn.writePump()
	conn.readPump(s.handler)

	s.log.Info("client disconnected", "conn", conn.ID())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
