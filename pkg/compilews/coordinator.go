package compilews

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/session"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
)

var errInvalidCompileRequest = errors.New("invalid compile request")

// Compiler runs compiles. *compile.Orchestrator implements it.
type Compiler interface {
	CompileProject(ctx context.Context, req compile.Request, hooks compile.Hooks) (*compile.Response, error)
}

// CoordinatorConfig configures a Coordinator. Sessions, Authorizer and
// Compiler are required.
type CoordinatorConfig struct {
	Registry   *Registry
	Sessions   session.Store
	Authorizer project.Authorizer
	Compiler   Compiler

	CookieName string
	Secrets    []string

	// HeartbeatInterval is the liveness frame interval. Zero or negative
	// disables liveness frames.
	HeartbeatInterval time.Duration

	// StatusInterval is the compile-status "running" interval.
	// Default: HeartbeatInterval.
	StatusInterval time.Duration

	WriteTimeout time.Duration
	ReadLimit    int64

	// AllowedOrigins restricts upgrade origins. Empty allows same host.
	AllowedOrigins []string

	Clock   clock.Clock
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Coordinator serves the realtime compile channel. Each inbound compile
// frame runs concurrently with the others on the same connection.
type Coordinator struct {
	registry   *Registry
	sessions   session.Store
	authorizer project.Authorizer
	compiler   Compiler
	cookieName string
	secrets    []string

	heartbeatInterval time.Duration
	status            *heartbeat.Emitter
	writeTimeout      time.Duration
	readLimit         int64

	upgrader websocket.Upgrader
	clock    clock.Clock
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "overleaf.sid"
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = cfg.HeartbeatInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "compilews.coordinator")

	co := &Coordinator{
		registry:          cfg.Registry,
		sessions:          cfg.Sessions,
		authorizer:        cfg.Authorizer,
		compiler:          cfg.Compiler,
		cookieName:        cfg.CookieName,
		secrets:           cfg.Secrets,
		heartbeatInterval: cfg.HeartbeatInterval,
		status: heartbeat.NewEmitter(heartbeat.Config{
			Interval: cfg.StatusInterval,
			Clock:    cfg.Clock,
			Logger:   logger,
		}),
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.ReadLimit,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
	co.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	return co
}

// Registry returns the connection registry.
func (co *Coordinator) Registry() *Registry {
	return co.registry
}

// ServeHTTP authorizes and upgrades a connection, then reads frames until
// the connection closes. Failures before the upgrade are answered with 400
// or 401.
func (co *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		http.Error(w, "missing projectId", http.StatusBadRequest)
		return
	}

	c := newConn(projectID, co.writeTimeout)
	c.setState(StateAuthorizing)
	if err := co.authorize(ctx, r, c); err != nil {
		co.logger.WarnContext(ctx, "compile websocket authorization failed",
			"project_id", projectID,
			"user_id", c.UserID,
			"error", err,
		)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ws, err := co.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered.
		co.logger.DebugContext(ctx, "compile websocket upgrade failed", "project_id", projectID, "error", err)
		return
	}
	if co.readLimit > 0 {
		ws.SetReadLimit(co.readLimit)
	}
	c.ws = ws
	c.setState(StateOpen)
	co.registry.Add(projectID, c)
	co.metrics.WSConnected()

	co.logger.DebugContext(ctx, "compile websocket connected",
		"project_id", projectID,
		"user_id", c.UserID,
		"session_id", c.SessionID,
	)

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		cancel()
		co.registry.Remove(projectID, c)
		c.close()
		co.metrics.WSDisconnected()
	}()

	co.readLoop(connCtx, c)
}

// authorize resolves the session and checks read access. A request
// without a session cookie, or whose session has expired, is anonymous.
func (co *Coordinator) authorize(ctx context.Context, r *http.Request, c *Conn) error {
	sid, err := session.IDFromRequest(r, co.cookieName, co.secrets)
	switch {
	case errors.Is(err, session.ErrNoSession):
	case err != nil:
		// A forged or stale signature is rejected here rather than
		// downgraded to anonymous; HTTP routes treat it as anonymous.
		return err
	default:
		c.SessionID = sid
		sess, err := co.sessions.Get(ctx, sid)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			return err
		default:
			c.Session = sess
			c.UserID = sess.UserID()
		}
	}

	ok, err := co.authorizer.CanRead(ctx, c.UserID, c.ProjectID, c.Session.TokenFor(c.ProjectID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("read access denied")
	}
	return nil
}

func (co *Coordinator) readLoop(ctx context.Context, c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				co.logger.DebugContext(ctx, "compile websocket read ended", "project_id", c.ProjectID, "error", err)
			}
			return
		}

		var frame CompileFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			co.logger.DebugContext(ctx, "compile websocket payload parse failed", "error", err)
			continue
		}
		if frame.Type != TypeCompile {
			continue
		}
		co.metrics.RecordWSFrame(TypeCompile)
		go co.handleCompile(ctx, c, frame)
	}
}

func (co *Coordinator) handleCompile(ctx context.Context, c *Conn, frame CompileFrame) {
	compileID := frame.CompileID
	projectID := frame.ProjectID
	if projectID == "" {
		projectID = c.ProjectID
	}
	if compileID == "" || projectID != c.ProjectID {
		co.sendError(ctx, c, compileID, errInvalidCompileRequest)
		return
	}

	var body compile.Body
	if len(frame.Body) > 0 && string(frame.Body) != "null" {
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			co.sendError(ctx, c, compileID, errInvalidCompileRequest)
			return
		}
	}
	if body.CompileID == "" {
		body.CompileID = compileID
	}

	req := compile.Request{
		ProjectID:   c.ProjectID,
		UserID:      c.UserID,
		SessionID:   c.SessionID,
		AnalyticsID: c.Session.AnalyticsIDOrUser(),
		Query:       queryValues(frame.Query),
		Body:        body,
		Referer:     frame.Referer,
	}

	sink := &statusSink{co: co, conn: c, compileID: compileID, startedAt: co.clock.Now()}
	stop := co.status.Start(sink)
	if co.status.Interval() <= 0 {
		_ = sink.Ping()
	}

	res, err := co.compiler.CompileProject(ctx, req, compile.Hooks{})
	stop()
	if err != nil {
		co.logger.WarnContext(ctx, "compile websocket failed",
			"project_id", c.ProjectID,
			"compile_id", compileID,
			"error", err,
		)
		co.sendError(ctx, c, compileID, err)
		return
	}
	co.EmitCompileResult(c.ProjectID, res.UserID, res.SessionID, res)
}

// EmitCompileResult sends res to the connections of projectID bound to
// userID and, when sessionID is set, to that session. It implements
// compile.Fanout.
func (co *Coordinator) EmitCompileResult(projectID, userID, sessionID string, res *compile.Response) {
	if res == nil || res.Result == nil || co.registry.Len(projectID) == 0 {
		return
	}
	frame := ResultFrame{
		Type:      TypeCompileResult,
		CompileID: res.Result.CompileID,
		ProjectID: projectID,
		UserID:    nullable(userID),
		Result:    res.Result,
	}

	co.registry.ForEach(projectID, func(c *Conn) {
		if c.State() != StateOpen || c.UserID != userID {
			return
		}
		if sessionID != "" && c.SessionID != sessionID {
			return
		}
		if err := c.send(frame); err != nil {
			co.logger.Warn("compile websocket send failed",
				"project_id", projectID,
				"user_id", userID,
				"error", err,
			)
			return
		}
		co.metrics.RecordWSFrame(TypeCompileResult)
	})
}

func (co *Coordinator) sendError(ctx context.Context, c *Conn, compileID string, err error) {
	frame := ErrorFrame{
		Type:      TypeCompileError,
		CompileID: compileID,
		ProjectID: c.ProjectID,
		Message:   err.Error(),
	}
	if code, ok := clsi.StatusCode(err); ok {
		frame.StatusCode = code
	}
	if frame.Message == "" {
		frame.Message = "compile failed"
	}
	if err := c.send(frame); err != nil {
		co.logger.DebugContext(ctx, "compile websocket error send failed", "error", err)
		return
	}
	co.metrics.RecordWSFrame(TypeCompileError)
}

// Run sends liveness frames to every open connection until ctx is done.
func (co *Coordinator) Run(ctx context.Context) error {
	if co.heartbeatInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := co.clock.Ticker(co.heartbeatInterval)
	defer ticker.Stop()

	frame := HeartbeatFrame{Type: TypeHeartbeat}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			co.registry.Range(func(c *Conn) {
				if c.State() != StateOpen {
					return
				}
				if err := c.send(frame); err != nil {
					co.logger.Debug("compile websocket heartbeat failed", "project_id", c.ProjectID, "error", err)
					return
				}
				co.metrics.RecordHeartbeat("ws")
			})
		}
	}
}

// Close closes every open connection.
func (co *Coordinator) Close() {
	co.registry.Range(func(c *Conn) { c.close() })
}

// statusSink turns heartbeat pings into compile-status frames: the first
// ping reports "started", later ones "running".
type statusSink struct {
	co        *Coordinator
	conn      *Conn
	compileID string
	startedAt time.Time
	pinged    bool
}

func (s *statusSink) Ping() error {
	state := StateRunning
	if !s.pinged {
		state = StateStarted
		s.pinged = true
	}
	elapsed := s.co.clock.Since(s.startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	err := s.conn.send(StatusFrame{
		Type:      TypeCompileStatus,
		CompileID: s.compileID,
		ProjectID: s.conn.ProjectID,
		State:     state,
		ElapsedMs: elapsed,
	})
	if err == nil {
		s.co.metrics.RecordWSFrame(TypeCompileStatus)
	}
	return err
}

func (s *statusSink) Done() <-chan struct{} {
	return s.conn.Done()
}

// originChecker allows the listed origins, or same-host origins when the
// list is empty. "*" allows all.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host)
		})
	}
}
