package compilews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"mercator-hq/compilegate/pkg/compile"
)

// Client errors.
var (
	ErrWaitTimeout   = errors.New("compile websocket timeout")
	ErrWaitCanceled  = errors.New("compile websocket wait canceled")
	ErrClientClosed  = errors.New("compile websocket client closed")
	ErrResultMissing = errors.New("compile websocket result missing")
)

// CompileError is a compile-error frame received by the client.
type CompileError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Message == "" {
		return "compile websocket error"
	}
	return e.Message
}

// HTTPStatus returns the status the server reported, or 0.
func (e *CompileError) HTTPStatus() int {
	return e.StatusCode
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the socket endpoint, e.g. "ws://localhost:3000/compile-ws".
	URL string

	ProjectID string

	// Header is sent on every dial, typically carrying the session cookie.
	Header http.Header

	// ConnectTimeout bounds one dial. Default: 5s.
	ConnectTimeout time.Duration

	// ReconnectDelay is waited before redialing while waits are pending.
	// Default: 1s.
	ReconnectDelay time.Duration

	// WaitTimeout applies to Wait calls with a zero timeout. Default: 10m.
	WaitTimeout time.Duration

	// OnStatus receives compile-status frames.
	OnStatus func(StatusFrame)

	Dialer *websocket.Dialer
	Clock  clock.Clock
	Logger *slog.Logger
}

type pendingEntry struct {
	done   chan struct{}
	once   sync.Once
	result *compile.Result
	err    error
	timer  *clock.Timer
}

func (e *pendingEntry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

func (e *pendingEntry) finish(res *compile.Result, err error) {
	e.once.Do(func() {
		e.result = res
		e.err = err
		close(e.done)
	})
}

// Client is a realtime compile channel client bound to one project. Many
// compiles share its single connection.
type Client struct {
	url            string
	projectID      string
	header         http.Header
	connectTimeout time.Duration
	reconnectDelay time.Duration
	waitTimeout    time.Duration
	onStatus       func(StatusFrame)
	dialer         *websocket.Dialer
	clock          clock.Clock
	logger         *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	dialing   chan struct{}
	pending   map[string]*pendingEntry
	reconnect *clock.Timer
	closed    bool

	writeMu sync.Mutex
}

// NewClient creates a client. It does not dial until the first Wait or
// SendCompile.
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid compile websocket URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid compile websocket URL %q: scheme must be ws or wss", cfg.URL)
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("project id is required")
	}
	q := u.Query()
	q.Set("projectId", cfg.ProjectID)
	u.RawQuery = q.Encode()

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Minute
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		url:            u.String(),
		projectID:      cfg.ProjectID,
		header:         cfg.Header,
		connectTimeout: cfg.ConnectTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		waitTimeout:    cfg.WaitTimeout,
		onStatus:       cfg.OnStatus,
		dialer:         cfg.Dialer,
		clock:          cfg.Clock,
		logger:         cfg.Logger.With("component", "compilews.client"),
		pending:        make(map[string]*pendingEntry),
	}, nil
}

// Waiter is a pending wait for one compile result.
type Waiter struct {
	c         *Client
	compileID string
	entry     *pendingEntry
}

// Result blocks until the result arrives, the wait times out or is
// canceled, or ctx is done.
func (w *Waiter) Result(ctx context.Context) (*compile.Result, error) {
	select {
	case <-w.entry.done:
		return w.entry.result, w.entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel abandons the wait. Coalesced waiters for the same compile are
// canceled too.
func (w *Waiter) Cancel() {
	w.c.mu.Lock()
	if w.c.pending[w.compileID] == w.entry {
		delete(w.c.pending, w.compileID)
	}
	w.c.mu.Unlock()
	w.entry.stopTimer()
	w.entry.finish(nil, ErrWaitCanceled)
}

// Wait registers interest in the result of compileID. A second Wait for an
// id that is still pending shares the first one's entry. A zero timeout
// uses the configured default.
func (c *Client) Wait(compileID string, timeout time.Duration) *Waiter {
	if timeout <= 0 {
		timeout = c.waitTimeout
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		e := &pendingEntry{done: make(chan struct{})}
		e.finish(nil, ErrClientClosed)
		return &Waiter{c: c, compileID: compileID, entry: e}
	}
	if e, ok := c.pending[compileID]; ok {
		c.mu.Unlock()
		return &Waiter{c: c, compileID: compileID, entry: e}
	}

	e := &pendingEntry{done: make(chan struct{})}
	e.timer = c.clock.AfterFunc(timeout, func() {
		c.mu.Lock()
		if c.pending[compileID] == e {
			delete(c.pending, compileID)
		}
		c.mu.Unlock()
		e.finish(nil, ErrWaitTimeout)
	})
	c.pending[compileID] = e
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		go func() {
			if _, err := c.connect(context.Background()); err != nil {
				c.logger.Debug("compile websocket connect failed", "project_id", c.projectID, "error", err)
				c.scheduleReconnect()
			}
		}()
	}
	return &Waiter{c: c, compileID: compileID, entry: e}
}

// SendCompile sends a compile frame, dialing first when needed. Type and
// ProjectID are filled in when empty.
func (c *Client) SendCompile(ctx context.Context, frame CompileFrame) error {
	if frame.CompileID == "" {
		return errors.New("compile id is required")
	}
	if frame.Type == "" {
		frame.Type = TypeCompile
	}
	if frame.ProjectID == "" {
		frame.ProjectID = c.projectID
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send compile frame: %w", err)
	}
	return nil
}

// Pending returns the number of pending waits.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close closes the connection and fails every pending wait.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	pending := c.pending
	c.pending = make(map[string]*pendingEntry)
	c.mu.Unlock()

	for _, e := range pending {
		e.stopTimer()
		e.finish(nil, ErrClientClosed)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// connect returns the open connection, dialing when there is none. Only
// one dial is in flight at a time.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClientClosed
		}
		if c.conn != nil {
			conn := c.conn
			c.mu.Unlock()
			return conn, nil
		}
		if c.dialing == nil {
			break
		}
		dialing := c.dialing
		c.mu.Unlock()
		select {
		case <-dialing:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}
	dialing := make(chan struct{})
	c.dialing = dialing
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, c.header)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.dialing = nil
	close(dialing)
	if err == nil {
		if c.closed {
			conn.Close()
			err = ErrClientClosed
		} else {
			c.conn = conn
			go c.readLoop(conn)
		}
	}
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("compile websocket connect: %w", err)
	}
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	waiting := len(c.pending) > 0
	c.mu.Unlock()

	c.logger.Debug("compile websocket closed", "project_id", c.projectID, "error", err)
	if waiting {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnect != nil || len(c.pending) == 0 {
		return
	}
	c.reconnect = c.clock.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		if _, err := c.connect(context.Background()); err != nil {
			c.logger.Debug("compile websocket reconnect failed", "project_id", c.projectID, "error", err)
			c.scheduleReconnect()
		}
	})
}

func (c *Client) handleMessage(data []byte) {
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug("compile websocket payload parse error", "error", err)
		return
	}
	if frame.Type == TypeHeartbeat || frame.ProjectID != c.projectID || frame.CompileID == "" {
		return
	}

	switch frame.Type {
	case TypeCompileStatus:
		if c.onStatus != nil {
			c.onStatus(StatusFrame{
				Type:      frame.Type,
				CompileID: frame.CompileID,
				ProjectID: frame.ProjectID,
				State:     frame.State,
				ElapsedMs: frame.ElapsedMs,
			})
		}
	case TypeCompileError:
		c.resolve(frame.CompileID, nil, &CompileError{StatusCode: frame.StatusCode, Message: frame.Message})
	case TypeCompileResult:
		if len(frame.Result) == 0 || string(frame.Result) == "null" {
			c.resolve(frame.CompileID, nil, ErrResultMissing)
			return
		}
		var res compile.Result
		if err := json.Unmarshal(frame.Result, &res); err != nil {
			c.resolve(frame.CompileID, nil, fmt.Errorf("invalid compile result: %w", err))
			return
		}
		c.resolve(frame.CompileID, &res, nil)
	}
}

func (c *Client) resolve(compileID string, res *compile.Result, err error) {
	c.mu.Lock()
	e, ok := c.pending[compileID]
	if ok {
		delete(c.pending, compileID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	e.stopTimer()
	e.finish(res, err)
}
