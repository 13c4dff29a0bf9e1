package clsi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/compilegate/pkg/affinity"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// Client talks to the CLSI backend. Each method performs exactly one HTTP
// request with its own deadline and never retries.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	selector       *affinity.Selector
	compileTimeout time.Duration
	requestTimeout time.Duration
	tracer         trace.Tracer
	logger         *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. "http://clsi:3013".
	BaseURL string

	// CompileTimeout bounds a full compile. Default: 10 minutes.
	CompileTimeout time.Duration

	// RequestTimeout bounds every other call. Default: 60 seconds.
	RequestTimeout time.Duration

	// MaxIdleConns and MaxIdleConnsPerHost size the connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int

	// Transport overrides the pooled transport (tests).
	Transport http.RoundTripper

	// Tracer records a span per backend call. Default: noop.
	Tracer trace.Tracer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewClient creates a backend client. selector supplies and records server
// affinity.
func NewClient(cfg ClientConfig, selector *affinity.Selector) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CLSI URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid CLSI URL %q: scheme and host are required", cfg.BaseURL)
	}
	if selector == nil {
		return nil, errors.New("affinity selector is required")
	}

	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = 10 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 20
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("compilegate/clsi")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:        base,
		http:           &http.Client{Transport: transport},
		selector:       selector,
		compileTimeout: cfg.CompileTimeout,
		requestTimeout: cfg.RequestTimeout,
		tracer:         cfg.Tracer,
		logger:         cfg.Logger.With("component", "clsi.client"),
	}, nil
}

// HTTPClient returns the pooled client, for streaming callers.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Selector returns the affinity selector the client routes with.
func (c *Client) Selector() *affinity.Selector {
	return c.selector
}

// ProjectPath builds "/project/{id}[/user/{uid}]/{op...}".
func ProjectPath(projectID, userID string, op ...string) string {
	parts := []string{"/project", url.PathEscape(projectID)}
	if userID != "" {
		parts = append(parts, "user", url.PathEscape(userID))
	}
	parts = append(parts, op...)
	return path.Join(parts...)
}

// RouteQuery returns the query parameters that select the backend route.
// With an explicit server id the id is sent as clsiserverid.
func RouteQuery(route Route) url.Values {
	q := url.Values{}
	if route.ServerID != "" {
		q.Set("clsiserverid", route.ServerID)
	}
	if route.CompileGroup != "" {
		q.Set("compileGroup", string(route.CompileGroup))
	}
	if route.BackendClass != "" {
		q.Set("compileBackendClass", string(route.BackendClass))
	}
	return q
}

// NewRequest builds a backend request for p carrying the routing query
// and, when no explicit server is given, the affinity cookie for key.
// Values in extra override the routing parameters; empty values are dropped.
func (c *Client) NewRequest(ctx context.Context, method, p string, route Route, key affinity.Key, extra url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)

	q := RouteQuery(route)
	for k, vs := range extra {
		q.Del(k)
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if route.ServerID == "" {
		if cookie := c.selector.CookieFor(c.selector.GetServerID(ctx, key)); cookie != nil {
			req.AddCookie(cookie)
		}
	}
	return req, nil
}

// RecordAffinity stores the server a response came from, unless the call
// was pinned explicitly. It returns the server id found on the response.
func (c *Client) RecordAffinity(ctx context.Context, route Route, key affinity.Key, resp *http.Response) string {
	serverID := c.selector.ServerIDFromResponse(resp)
	if route.ServerID == "" {
		c.selector.RecordServerID(ctx, key, serverID)
	}
	return serverID
}

// AffinityKey returns the affinity store key of a call.
func AffinityKey(projectID, userID string, route Route) affinity.Key {
	return affinity.Key{
		ProjectID:    projectID,
		UserID:       userID,
		CompileGroup: route.CompileGroup,
		BackendClass: route.BackendClass,
	}
}

// call performs one backend request and returns the raw 2xx body.
func (c *Client) call(ctx context.Context, op, method, p string, timeout time.Duration, route Route, key affinity.Key, query url.Values, payload any) ([]byte, string, error) {
	ctx, span := c.tracer.Start(ctx, "clsi."+op, trace.WithAttributes(
		attribute.String("clsi.op", op),
		attribute.String("project.id", key.ProjectID),
		attribute.String("clsi.compile_group", string(route.CompileGroup)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, p, route, key, query, body)
	if err != nil {
		return nil, "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &TimeoutError{Op: op, Timeout: timeout}
		} else {
			err = &TransportError{Op: op, Cause: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}
	defer resp.Body.Close()

	serverID := c.RecordAffinity(ctx, route, key, resp)
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("clsi.server_id", serverID),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &RequestFailedError{Op: op, StatusCode: resp.StatusCode, Body: string(errBody)}
		span.SetStatus(codes.Error, err.Error())
		return nil, serverID, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, serverID, &TimeoutError{Op: op, Timeout: timeout}
		}
		return nil, serverID, &TransportError{Op: op, Cause: err}
	}

	c.logger.DebugContext(ctx, "clsi call completed",
		"op", op,
		"project_id", key.ProjectID,
		"status", resp.StatusCode,
		"server_id", serverID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return data, serverID, nil
}

// Compile runs a full compile. Cancellation of ctx by the inbound client is
// not propagated: the compile keeps running until the backend answers or the
// compile deadline passes.
func (c *Client) Compile(ctx context.Context, projectID, userID string, opts CompileOptions) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	body := compileRequestBody{Compile: compileRequest{
		Options:   newCompileRequest(opts),
		RootDocID: opts.RootDocID,
	}}
	key := AffinityKey(projectID, userID, opts.Route)
	return c.compile(ctx, "compile", ProjectPath(projectID, userID, "compile"), opts.Route, key, body)
}

// SendExternalRequest compiles an anonymous submission. Submissions have no
// user and are not pinned across calls by user.
func (c *Client) SendExternalRequest(ctx context.Context, submissionID string, sub SubmissionRequest) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	body := compileRequestBody{Compile: compileRequest{
		Options:          newCompileRequest(sub.Options),
		RootResourcePath: sub.RootResourcePath,
		Resources:        sub.Resources,
	}}
	key := AffinityKey(submissionID, "", sub.Options.Route)
	return c.compile(ctx, "submission", ProjectPath(submissionID, "", "compile"), sub.Options.Route, key, body)
}

func (c *Client) compile(ctx context.Context, op, p string, route Route, key affinity.Key, body compileRequestBody) (*Result, error) {
	data, serverID, err := c.call(ctx, op, http.MethodPost, p, c.compileTimeout, route, key, nil, body)
	if err != nil {
		return nil, err
	}

	var parsed compileResponseBody
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ParseError{Op: op, Cause: err}
	}
	if parsed.Compile.Status == "" {
		return nil, &ParseError{Op: op, Cause: errors.New("missing compile status")}
	}

	res := &Result{
		Status:             parsed.Compile.Status,
		OutputFiles:        parsed.Compile.OutputFiles,
		ClsiServerID:       parsed.Compile.ClsiServerID,
		ClsiCacheShard:     parsed.Compile.ClsiCacheShard,
		ValidationProblems: parsed.Compile.ValidationProblems,
		Stats:              parsed.Compile.Stats,
		Timings:            parsed.Compile.Timings,
		OutputURLPrefix:    parsed.Compile.OutputURLPrefix,
		BuildID:            parsed.Compile.BuildID,
		AdminHint:          parsed.Compile.AdminHint,
		RestoredClsiCache:  parsed.Compile.RestoredClsiCache,
	}
	if serverID != "" {
		res.ClsiServerID = serverID
	}
	if res.OutputFiles == nil {
		res.OutputFiles = []OutputFile{}
	}
	if res.BuildID == "" {
		for _, f := range res.OutputFiles {
			if f.Build != "" {
				res.BuildID = f.Build
				break
			}
		}
	}
	return res, nil
}

// StopCompile asks the backend to abort a running compile.
func (c *Client) StopCompile(ctx context.Context, projectID, userID string, route Route) error {
	key := AffinityKey(projectID, userID, route)
	_, _, err := c.call(ctx, "stop-compile", http.MethodPost, ProjectPath(projectID, userID, "compile", "stop"),
		c.requestTimeout, route, key, nil, nil)
	return err
}

// DeleteAuxFiles clears the build output directory.
func (c *Client) DeleteAuxFiles(ctx context.Context, projectID, userID string, route Route) error {
	key := AffinityKey(projectID, userID, route)
	_, _, err := c.call(ctx, "delete-aux-files", http.MethodDelete, ProjectPath(projectID, userID),
		c.requestTimeout, route, key, nil, nil)
	if err == nil {
		c.selector.ClearServerID(ctx, key)
	}
	return err
}

// WordCount returns the backend's word count report for file.
func (c *Client) WordCount(ctx context.Context, projectID, userID, file string, route Route) (json.RawMessage, error) {
	key := AffinityKey(projectID, userID, route)
	q := url.Values{}
	q.Set("file", file)
	data, _, err := c.call(ctx, "wordcount", http.MethodGet, ProjectPath(projectID, userID, "wordcount"),
		c.requestTimeout, route, key, q, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// SyncFromCode maps a source position to PDF coordinates.
func (c *Client) SyncFromCode(ctx context.Context, projectID, userID string, route Route, p SyncFromCodeParams) (json.RawMessage, error) {
	key := AffinityKey(projectID, userID, route)
	q := url.Values{}
	q.Set("file", p.File)
	q.Set("line", strconv.Itoa(p.Line))
	q.Set("column", strconv.Itoa(p.Column))
	q.Set("editorId", p.EditorID)
	q.Set("buildId", p.BuildID)
	data, _, err := c.call(ctx, "sync-to-pdf", http.MethodGet, ProjectPath(projectID, userID, "sync", "code"),
		c.requestTimeout, route, key, q, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// SyncFromPDF maps PDF coordinates to a source position.
func (c *Client) SyncFromPDF(ctx context.Context, projectID, userID string, route Route, p SyncFromPDFParams) (json.RawMessage, error) {
	key := AffinityKey(projectID, userID, route)
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("h", p.H)
	q.Set("v", p.V)
	q.Set("editorId", p.EditorID)
	q.Set("buildId", p.BuildID)
	data, _, err := c.call(ctx, "sync-to-code", http.MethodGet, ProjectPath(projectID, userID, "sync", "pdf"),
		c.requestTimeout, route, key, q, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
