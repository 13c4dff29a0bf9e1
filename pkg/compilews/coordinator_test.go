package compilews

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/session"
)

const testSecret = "s3cret"

type authorizerFunc func(ctx context.Context, userID, projectID, token string) (bool, error)

func (f authorizerFunc) CanRead(ctx context.Context, userID, projectID, token string) (bool, error) {
	return f(ctx, userID, projectID, token)
}

type fakeCompiler struct {
	mu    sync.Mutex
	calls []compile.Request
	fn    func(ctx context.Context, req compile.Request) (*compile.Response, error)
}

func (f *fakeCompiler) CompileProject(ctx context.Context, req compile.Request, _ compile.Hooks) (*compile.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return successResponse(req), nil
}

func (f *fakeCompiler) Calls() []compile.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compile.Request(nil), f.calls...)
}

func successResponse(req compile.Request) *compile.Response {
	return &compile.Response{
		Result:    &compile.Result{Status: "success", CompileID: req.Body.CompileID},
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}
}

type harness struct {
	co       *Coordinator
	srv      *httptest.Server
	sessions *session.MemoryStore
	compiler *fakeCompiler
}

func newHarness(t *testing.T, mutate func(*CoordinatorConfig)) *harness {
	t.Helper()
	h := &harness{
		sessions: session.NewMemoryStore(nil),
		compiler: &fakeCompiler{},
	}
	cfg := CoordinatorConfig{
		Sessions: h.sessions,
		Authorizer: authorizerFunc(func(context.Context, string, string, string) (bool, error) {
			return true, nil
		}),
		Compiler:     h.compiler,
		Secrets:      []string{testSecret},
		WriteTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.co = NewCoordinator(cfg)

	mux := http.NewServeMux()
	mux.Handle("/compile-ws", h.co)
	h.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		h.co.Close()
		h.srv.Close()
	})
	return h
}

func (h *harness) addSession(t *testing.T, sid, userID string) string {
	t.Helper()
	s := &session.Session{ID: sid}
	if userID != "" {
		s.User = &session.User{ID: userID}
	}
	require.NoError(t, h.sessions.Set(context.Background(), s, time.Hour))
	return session.Sign(sid, testSecret)
}

func (h *harness) url(projectID string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/compile-ws"
	if projectID != "" {
		u += "?projectId=" + projectID
	}
	return u
}

func (h *harness) dial(t *testing.T, projectID, cookie string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", "overleaf.sid="+cookie)
	}
	ws, _, err := websocket.DefaultDialer.Dial(h.url(projectID), header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (h *harness) waitConns(t *testing.T, projectID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.co.Registry().Len(projectID) == n },
		2*time.Second, 5*time.Millisecond)
}

func sendCompile(t *testing.T, ws *websocket.Conn, frame CompileFrame) {
	t.Helper()
	if frame.Type == "" {
		frame.Type = TypeCompile
	}
	require.NoError(t, ws.WriteJSON(frame))
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var f ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readUntil reads frames until one of type typ arrives and returns it
// along with the frames skipped on the way.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) (ServerFrame, []ServerFrame) {
	t.Helper()
	var skipped []ServerFrame
	for {
		f := readFrame(t, ws)
		if f.Type == typ {
			return f, skipped
		}
		skipped = append(skipped, f)
	}
}

func expectNoFrame(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(d)))
	_, data, err := ws.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame: %s", data)
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("read failed with %v, want a timeout", err)
	}
}

func TestServeHTTP_MissingProjectID(t *testing.T) {
	h := newHarness(t, nil)

	rec := httptest.NewRecorder()
	h.co.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/compile-ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_Authorization(t *testing.T) {
	tests := []struct {
		name       string
		cookie     func(t *testing.T, h *harness) string
		wantStatus int
		wantUser   string
	}{
		{
			name:       "logged in",
			cookie:     func(t *testing.T, h *harness) string { return h.addSession(t, "s1", "u1") },
			wantStatus: http.StatusSwitchingProtocols,
			wantUser:   "u1",
		},
		{
			name: "percent-encoded cookie",
			cookie: func(t *testing.T, h *harness) string {
				return url.QueryEscape(h.addSession(t, "s2", "u2"))
			},
			wantStatus: http.StatusSwitchingProtocols,
			wantUser:   "u2",
		},
		{
			name:       "no cookie is anonymous",
			cookie:     func(*testing.T, *harness) string { return "" },
			wantStatus: http.StatusSwitchingProtocols,
		},
		{
			name:       "expired session is anonymous",
			cookie:     func(*testing.T, *harness) string { return session.Sign("gone", testSecret) },
			wantStatus: http.StatusSwitchingProtocols,
		},
		{
			name:       "bad signature",
			cookie:     func(*testing.T, *harness) string { return "s:s1.forged" },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				lastUser = "unset"
			)
			h := newHarness(t, func(cfg *CoordinatorConfig) {
				cfg.Authorizer = authorizerFunc(func(_ context.Context, userID, _, _ string) (bool, error) {
					mu.Lock()
					lastUser = userID
					mu.Unlock()
					return true, nil
				})
			})

			header := http.Header{}
			if c := tt.cookie(t, h); c != "" {
				header.Set("Cookie", "overleaf.sid="+c)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(h.url("p1"), header)
			if ws != nil {
				defer ws.Close()
			}
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusSwitchingProtocols {
				assert.ErrorIs(t, err, websocket.ErrBadHandshake)
				return
			}
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantUser, lastUser)
		})
	}
}

func TestServeHTTP_ReadAccessDenied(t *testing.T) {
	h := newHarness(t, func(cfg *CoordinatorConfig) {
		cfg.Authorizer = authorizerFunc(func(context.Context, string, string, string) (bool, error) {
			return false, nil
		})
	})

	_, resp, err := websocket.DefaultDialer.Dial(h.url("p1"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, h.co.Registry().Len("p1"))
}

func TestServeHTTP_AnonymousTokenAccess(t *testing.T) {
	gotToken := make(chan string, 1)
	h := newHarness(t, func(cfg *CoordinatorConfig) {
		cfg.Authorizer = authorizerFunc(func(_ context.Context, userID, projectID, token string) (bool, error) {
			gotToken <- token
			return userID == "" && projectID == "p1" && token == "tok-1", nil
		})
	})
	require.NoError(t, h.sessions.Set(context.Background(), &session.Session{
		ID:              "anon",
		AnonTokenAccess: map[string]string{"p1": "tok-1"},
	}, time.Hour))

	h.dial(t, "p1", session.Sign("anon", testSecret))
	assert.Equal(t, "tok-1", <-gotToken)
}

func TestCompile_ResultAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t, "p1", h.addSession(t, "s1", "u1"))

	sendCompile(t, ws, CompileFrame{
		CompileID: "c1",
		Body:      json.RawMessage(`{"rootDoc_id":"doc1"}`),
		Query:     map[string]any{"auto_compile": true, "file_line_errors": false},
	})

	status := readFrame(t, ws)
	assert.Equal(t, TypeCompileStatus, status.Type)
	assert.Equal(t, StateStarted, status.State)
	assert.Equal(t, "c1", status.CompileID)
	assert.Equal(t, "p1", status.ProjectID)

	result, _ := readUntil(t, ws, TypeCompileResult)
	assert.Equal(t, "c1", result.CompileID)
	require.NotNil(t, result.UserID)
	assert.Equal(t, "u1", *result.UserID)

	var res compile.Result
	require.NoError(t, json.Unmarshal(result.Result, &res))
	assert.Equal(t, "success", res.Status)

	calls := h.compiler.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "p1", req.ProjectID)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "c1", req.Body.CompileID)
	assert.Equal(t, "doc1", req.Body.RootDocID)
	assert.Equal(t, "true", req.Query.Get("auto_compile"))
	assert.False(t, req.Query.Has("file_line_errors"))
}

func TestCompile_RunningStatusFrames(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(cfg *CoordinatorConfig) {
		cfg.StatusInterval = 10 * time.Millisecond
	})
	h.compiler.fn = func(_ context.Context, req compile.Request) (*compile.Response, error) {
		<-release
		return successResponse(req), nil
	}
	ws := h.dial(t, "p1", "")

	sendCompile(t, ws, CompileFrame{CompileID: "c1"})
	assert.Equal(t, StateStarted, readFrame(t, ws).State)
	running := readFrame(t, ws)
	assert.Equal(t, TypeCompileStatus, running.Type)
	assert.Equal(t, StateRunning, running.State)
	close(release)

	result, _ := readUntil(t, ws, TypeCompileResult)
	assert.Equal(t, "c1", result.CompileID)
	assert.Nil(t, result.UserID)
}

func TestCompile_InvalidFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame CompileFrame
	}{
		{name: "other project", frame: CompileFrame{ProjectID: "p2", CompileID: "c1"}},
		{name: "missing compile id", frame: CompileFrame{ProjectID: "p1"}},
		{name: "malformed body", frame: CompileFrame{CompileID: "c1", Body: json.RawMessage(`"nope"`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ws := h.dial(t, "p1", "")

			sendCompile(t, ws, tt.frame)
			f := readFrame(t, ws)
			assert.Equal(t, TypeCompileError, f.Type)
			assert.Equal(t, tt.frame.CompileID, f.CompileID)
			assert.Equal(t, "p1", f.ProjectID)
			assert.Equal(t, "invalid compile request", f.Message)
			assert.Empty(t, h.compiler.Calls())
		})
	}
}

func TestCompile_IgnoresNonCompileFrames(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t, "p1", "")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	sendCompile(t, ws, CompileFrame{CompileID: "c1"})

	f, skipped := readUntil(t, ws, TypeCompileResult)
	assert.Equal(t, "c1", f.CompileID)
	for _, s := range skipped {
		assert.Equal(t, TypeCompileStatus, s.Type)
	}
	assert.Len(t, h.compiler.Calls(), 1)
}

func TestCompile_ErrorFrame(t *testing.T) {
	h := newHarness(t, nil)
	h.compiler.fn = func(context.Context, compile.Request) (*compile.Response, error) {
		return nil, &clsi.RequestFailedError{Op: "compile", StatusCode: http.StatusServiceUnavailable}
	}
	ws := h.dial(t, "p1", "")

	sendCompile(t, ws, CompileFrame{CompileID: "c1"})
	f, _ := readUntil(t, ws, TypeCompileError)
	assert.Equal(t, "c1", f.CompileID)
	assert.Equal(t, http.StatusServiceUnavailable, f.StatusCode)
	assert.Equal(t, "clsi compile failed with status 503", f.Message)
}

func TestCompile_ConcurrentOnOneConnection(t *testing.T) {
	h := newHarness(t, nil)
	started := make(chan string, 2)
	release := make(chan struct{})
	h.compiler.fn = func(_ context.Context, req compile.Request) (*compile.Response, error) {
		started <- req.Body.CompileID
		<-release
		return successResponse(req), nil
	}
	ws := h.dial(t, "p1", h.addSession(t, "s1", "u1"))

	sendCompile(t, ws, CompileFrame{CompileID: "a"})
	sendCompile(t, ws, CompileFrame{CompileID: "b"})

	inFlight := map[string]bool{}
	for range 2 {
		select {
		case id := <-started:
			inFlight[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("compiles did not run concurrently")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, inFlight)
	close(release)

	results := map[string]bool{}
	for len(results) < 2 {
		f, _ := readUntil(t, ws, TypeCompileResult)
		results[f.CompileID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, results)
}

func TestEmitCompileResult_Isolation(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.dial(t, "p1", h.addSession(t, "s1", "u1"))
	aliceOtherTab := h.dial(t, "p1", h.addSession(t, "s2", "u1"))
	bob := h.dial(t, "p1", h.addSession(t, "s3", "u2"))
	otherProject := h.dial(t, "p2", h.addSession(t, "s4", "u1"))
	h.waitConns(t, "p1", 3)
	h.waitConns(t, "p2", 1)

	// A socket compile reaches only the requesting session.
	sendCompile(t, alice, CompileFrame{CompileID: "c1"})
	f, _ := readUntil(t, alice, TypeCompileResult)
	assert.Equal(t, "c1", f.CompileID)
	expectNoFrame(t, aliceOtherTab, 100*time.Millisecond)

	// Without a session every connection of the user gets it.
	h.co.EmitCompileResult("p1", "u1", "", &compile.Response{
		Result: &compile.Result{Status: "success", CompileID: "c2"},
	})
	f, _ = readUntil(t, alice, TypeCompileResult)
	assert.Equal(t, "c2", f.CompileID)
	f, _ = readUntil(t, aliceOtherTab, TypeCompileResult)
	assert.Equal(t, "c2", f.CompileID)

	expectNoFrame(t, bob, 100*time.Millisecond)
	expectNoFrame(t, otherProject, 100*time.Millisecond)
}

func TestEmitCompileResult_AnonymousOnlyToAnonymous(t *testing.T) {
	h := newHarness(t, nil)
	anon := h.dial(t, "p1", "")
	user := h.dial(t, "p1", h.addSession(t, "s1", "u1"))
	h.waitConns(t, "p1", 2)

	h.co.EmitCompileResult("p1", "", "", &compile.Response{
		Result: &compile.Result{Status: "success", CompileID: "c1"},
	})
	f := readFrame(t, anon)
	assert.Equal(t, "c1", f.CompileID)
	assert.Nil(t, f.UserID)
	expectNoFrame(t, user, 100*time.Millisecond)
}

func TestRun_Heartbeat(t *testing.T) {
	h := newHarness(t, func(cfg *CoordinatorConfig) {
		cfg.HeartbeatInterval = 20 * time.Millisecond
	})
	ws := h.dial(t, "p1", "")
	h.waitConns(t, "p1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.co.Run(ctx) }()

	f := readFrame(t, ws)
	assert.Equal(t, TypeHeartbeat, f.Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDisconnectDeregisters(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t, "p1", "")
	h.waitConns(t, "p1", 1)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ws.Close()
	h.waitConns(t, "p1", 0)
	assert.Zero(t, h.co.Registry().Projects())
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.test", want: true},
		{name: "listed origin", allowed: []string{"https://editor.test"}, origin: "https://editor.test", want: true},
		{name: "listed host", allowed: []string{"editor.test"}, origin: "https://editor.test", want: true},
		{name: "no origin header", allowed: []string{"editor.test"}, want: true},
		{name: "rejected", allowed: []string{"editor.test"}, origin: "https://evil.test", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/compile-ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}

	if originChecker(nil) != nil {
		t.Error("empty list should fall back to the same-origin check")
	}
}
