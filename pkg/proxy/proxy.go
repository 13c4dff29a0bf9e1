package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/compilegate/pkg/affinity"
	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
	"mercator-hq/compilegate/pkg/telemetry/tracing"
)

// Proxy actions. The output-file and sync actions do not log upstream
// failures.
const (
	ActionOutputFile = "output-file"
	ActionSyncToCode = "sync-to-code"
	ActionSyncToPDF  = "sync-to-pdf"
)

var quietActions = map[string]bool{
	ActionOutputFile: true,
	ActionSyncToCode: true,
	ActionSyncToPDF:  true,
}

// errAbandoned marks a request whose client left before the upstream
// answered.
var errAbandoned = errors.New("proxy: request abandoned by client")

// Upstream builds and sends backend requests. *clsi.Client implements it.
type Upstream interface {
	NewRequest(ctx context.Context, method, p string, route clsi.Route, key affinity.Key, extra url.Values, body io.Reader) (*http.Request, error)
	HTTPClient() *http.Client
}

// Config configures a Proxy.
type Config struct {
	Upstream Upstream

	// Timeout bounds one upstream fetch. Default: 60s.
	Timeout time.Duration

	// BufferSize is the copy buffer size. Default: 32KB.
	BufferSize int

	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// ProxyRequest describes one proxied backend fetch.
type ProxyRequest struct {
	ProjectID string

	// UserID keys the affinity lookup. Empty for anonymous and shared
	// compiles.
	UserID string

	// Action labels metrics and logs, e.g. "output-file".
	Action string

	// Path is the backend path, usually built by compile.FileURL.
	Path string

	// Query holds per-call parameters. They win over the routing
	// parameters; empty values are not sent.
	Query url.Values

	Limits project.Limits
}

// Proxy streams backend files to clients.
type Proxy struct {
	upstream Upstream
	timeout  time.Duration
	bufPool  sync.Pool
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewProxy creates a Proxy.
func NewProxy(cfg Config) *Proxy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("compilegate/proxy")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	size := cfg.BufferSize
	return &Proxy{
		upstream: cfg.Upstream,
		timeout:  cfg.Timeout,
		bufPool: sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}},
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		logger:  cfg.Logger.With("component", "proxy"),
	}
}

// ProxyOutputFile fetches pr.Path from the backend and streams it to w.
// An explicit clsiserverid query parameter on r pins the backend server and
// bypasses the affinity store.
//
// The response is always answered here. The returned error is for the
// caller's information only: a bare status has already been written, or
// nothing at all when the client went away.
func (p *Proxy) ProxyOutputFile(w http.ResponseWriter, r *http.Request, pr ProxyRequest) error {
	start := time.Now()
	action := pr.Action

	route := clsi.Route{
		CompileGroup: pr.Limits.CompileGroup,
		BackendClass: pr.Limits.BackendClass,
		ServerID:     r.URL.Query().Get("clsiserverid"),
	}
	key := clsi.AffinityKey(pr.ProjectID, pr.UserID, route)

	ctx, span := p.tracer.Start(r.Context(), "proxy."+action)
	defer span.End()
	tracing.SetProxyAttributes(span, action, pr.ProjectID)

	p.metrics.RecordProxyRequest(action, "start")

	tw := &trackingWriter{ResponseWriter: w}
	err := p.stream(ctx, tw, r, pr, route, key)
	if err == nil {
		p.metrics.ObserveProxyDuration(action, "success", time.Since(start))
		return nil
	}
	if errors.Is(err, errAbandoned) {
		p.metrics.RecordProxyRequest(action, "req-aborted")
		return err
	}

	reqAborted := r.Context().Err() != nil
	status := "error"
	if reqAborted {
		status = "req-aborted-late"
	}
	duration := time.Since(start)
	p.metrics.ObserveProxyDuration(action, status, duration)
	p.metrics.RecordProxyRequest(action, status)
	tracing.RecordFailure(span, err)

	streamingStarted := tw.wroteHeader
	if !streamingStarted && !reqAborted {
		code, ok := clsi.StatusCode(err)
		if !ok {
			code = http.StatusInternalServerError
		}
		WriteStatus(tw, code)
	}

	outcome := Classify(err, reqAborted, streamingStarted)
	switch {
	case outcome == OutcomeTransportAbort:
		p.logger.DebugContext(ctx, "client went away during proxy",
			"project_id", pr.ProjectID,
			"action", action,
			"streaming_started", streamingStarted,
		)
		return err
	case outcome == OutcomeUpstreamFailed && quietActions[action]:
		return err
	}

	p.logger.WarnContext(ctx, "CLSI proxy error",
		"error", err,
		"outcome", outcome.String(),
		"project_id", pr.ProjectID,
		"url", pr.Path,
		"action", action,
		"req_aborted", reqAborted,
		"streaming_started", streamingStarted,
		"duration_ms", duration.Milliseconds(),
	)
	return err
}

func (p *Proxy) stream(ctx context.Context, tw *trackingWriter, r *http.Request, pr ProxyRequest, route clsi.Route, key affinity.Key) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.upstream.NewRequest(ctx, r.Method, pr.Path, route, key, pr.Query, nil)
	if err != nil {
		return err
	}

	resp, err := p.upstream.HTTPClient().Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			return errAbandoned
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
			return &clsi.TimeoutError{Op: pr.Action, Timeout: p.timeout}
		}
		return &clsi.TransportError{Op: pr.Action, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &clsi.RequestFailedError{Op: pr.Action, StatusCode: resp.StatusCode}
	}
	if r.Context().Err() != nil {
		return errAbandoned
	}
	p.metrics.RecordProxyStatus(pr.Action, resp.StatusCode)

	for _, h := range []string{"Content-Length", "Content-Type"} {
		if v := resp.Header.Get(h); v != "" {
			tw.Header().Set(h, v)
		}
	}
	tw.WriteHeader(resp.StatusCode)

	buf := p.bufPool.Get().(*[]byte)
	defer p.bufPool.Put(buf)

	if _, err := io.CopyBuffer(flushWriter{tw}, resp.Body, *buf); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
			return &clsi.TimeoutError{Op: pr.Action, Timeout: p.timeout}
		}
		return &clsi.TransportError{Op: pr.Action, Cause: err}
	}
	tw.Flush()
	return nil
}

// trackingWriter records whether the status line went out. Once it has, a
// second WriteHeader is dropped.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	if t.wroteHeader {
		return
	}
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

// flushWriter flushes after every chunk so large files reach the client as
// they arrive.
type flushWriter struct {
	w *trackingWriter
}

func (f flushWriter) Write(b []byte) (int, error) {
	n, err := f.w.Write(b)
	if err == nil {
		f.w.Flush()
	}
	return n, err
}
