package compilews

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mercator-hq/compilegate/pkg/session"
)

// ConnState is the lifecycle state of a socket connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthorizing
	StateOpen
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errConnClosed = errors.New("compilews: connection closed")

// Conn is one socket connection. It is bound to a single project and
// identity for its lifetime.
type Conn struct {
	ProjectID string
	UserID    string
	SessionID string
	Session   *session.Session

	state atomic.Int32

	// gorilla/websocket allows one concurrent writer.
	writeMu      sync.Mutex
	ws           *websocket.Conn
	writeTimeout time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(projectID string, writeTimeout time.Duration) *Conn {
	c := &Conn{
		ProjectID:    projectID,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
	c.setState(StateConnecting)
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// send writes one JSON frame.
func (c *Conn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateOpen {
		return errConnClosed
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteJSON(v)
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)
		if c.ws != nil {
			c.writeMu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = c.ws.Close()
		}
	})
}
