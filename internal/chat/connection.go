package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultSendBuff = 128
)

// Close codes used by the hub.
const (
	CloseUnauthorized     = 4401
	CloseHeartbeatTimeout = 4408
	CloseSlowConsumer     = 4409
)

// Transport is the write half of a websocket as the hub sees it.
// *websocket.Conn satisfies it; tests substitute a recording fake.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection couples a transport to an authenticated user and coordinates
// outbound writes through a buffered channel so the hub never blocks on a
// slow client.
type Connection struct {
	ID     string
	UserID string

	transport Transport
	send      chan []byte
	once      sync.Once
	closed    chan struct{}

	// Liveness bookkeeping, touched only on the hub goroutine.
	awaitingPong bool
	missedProbes int
}

// NewConnection constructs a Connection bound to the given verified user.
func NewConnection(userID string, transport Transport) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		UserID:    userID,
		transport: transport,
		send:      make(chan []byte, defaultSendBuff),
		closed:    make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A full buffer means the client cannot
// keep up; the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(CloseSlowConsumer, "send buffer full")
		return errors.New("send buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.transport.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(writeWait),
		)
		_ = c.transport.Close()
	})
}

// Closed reports whether the connection has been shut down.
func (c *Connection) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			if err := c.transport.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Close(websocket.CloseGoingAway, "write deadline failed")
				return
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseGoingAway, "write failed")
				return
			}
		}
	}
}
