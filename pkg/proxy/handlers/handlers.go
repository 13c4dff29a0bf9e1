package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/proxy"
	"mercator-hq/compilegate/pkg/proxy/middleware"
	"mercator-hq/compilegate/pkg/proxy/types"
	"mercator-hq/compilegate/pkg/telemetry/logging"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
)

// Compiler runs project compiles. *compile.Orchestrator implements it.
type Compiler interface {
	CompileProject(ctx context.Context, req compile.Request, hooks compile.Hooks) (*compile.Response, error)
	CompileUserID(userID string) string
}

// Backend is the subset of the CLSI client the short routes call.
// *clsi.Client implements it.
type Backend interface {
	StopCompile(ctx context.Context, projectID, userID string, route clsi.Route) error
	DeleteAuxFiles(ctx context.Context, projectID, userID string, route clsi.Route) error
	WordCount(ctx context.Context, projectID, userID, file string, route clsi.Route) (json.RawMessage, error)
	SyncFromCode(ctx context.Context, projectID, userID string, route clsi.Route, p clsi.SyncFromCodeParams) (json.RawMessage, error)
	SyncFromPDF(ctx context.Context, projectID, userID string, route clsi.Route, p clsi.SyncFromPDFParams) (json.RawMessage, error)
}

// Streamer streams output files. *proxy.Proxy implements it.
type Streamer interface {
	ProxyOutputFile(w http.ResponseWriter, r *http.Request, pr proxy.ProxyRequest) error
}

// SubmissionCompiler compiles public API submissions.
// *compile.SubmissionRunner implements it.
type SubmissionCompiler interface {
	CompileSubmission(ctx context.Context, submissionID string, body compile.SubmissionBody, hooks compile.Hooks) (*compile.SubmissionResult, error)
	RouteFor(group string) (clsi.Route, error)
}

// Config configures Handlers. Compiler, Backend and Streamer are required.
type Config struct {
	Compiler    Compiler
	Backend     Backend
	Streamer    Streamer
	Submissions SubmissionCompiler

	// Projects supplies compile limits and project names. Nil uses
	// Defaults for every project.
	Projects project.Directory

	// Authorizer guards project routes wrapped with RequireRead. Nil
	// allows every request.
	Authorizer project.Authorizer

	// Fanout receives successful HTTP compiles, typically the socket
	// coordinator. Optional.
	Fanout compile.Fanout

	// Limiter limits PDF downloads per client address. Nil disables.
	Limiter *proxy.DownloadLimiter

	// Defaults apply to projects the directory does not know.
	Defaults project.Limits

	// CompileTimeout extends the write deadline of held-open compile
	// responses.
	CompileTimeout time.Duration

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Handlers serves the compile and output routes.
type Handlers struct {
	compiler    Compiler
	backend     Backend
	streamer    Streamer
	submissions SubmissionCompiler
	projects    project.Directory
	authorizer  project.Authorizer
	fanout      compile.Fanout
	limiter     *proxy.DownloadLimiter
	defaults    project.Limits

	compileTimeout time.Duration

	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates Handlers.
func New(cfg Config) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		compiler:       cfg.Compiler,
		backend:        cfg.Backend,
		streamer:       cfg.Streamer,
		submissions:    cfg.Submissions,
		projects:       cfg.Projects,
		authorizer:     cfg.Authorizer,
		fanout:         cfg.Fanout,
		limiter:        cfg.Limiter,
		defaults:       cfg.Defaults,
		compileTimeout: cfg.CompileTimeout,
		metrics:        cfg.Metrics,
		logger:         logger.With("component", "handlers"),
	}
}

// RequireRead answers 403 unless the request's session may read the
// project named by the project_id path value.
func (h *Handlers) RequireRead(next http.HandlerFunc) http.HandlerFunc {
	if h.authorizer == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID := r.PathValue("project_id")
		sess := middleware.GetSession(ctx)

		ok, err := h.authorizer.CanRead(ctx, sess.UserID(), projectID, sess.TokenFor(projectID))
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		if !ok {
			h.logger.DebugContext(ctx, "read access denied", "project_id", projectID, "user_id", sess.UserID())
			h.writeErrorResponse(ctx, w, http.StatusForbidden, types.NewStatusError(http.StatusForbidden, "read access denied"))
			return
		}
		next(w, r)
	}
}

// projectContext tags ctx with the project id for logging.
func projectContext(r *http.Request) (context.Context, string) {
	projectID := r.PathValue("project_id")
	return logging.WithProjectID(r.Context(), projectID), projectID
}

// loggedInUserID returns the session user, or "" for anonymous requests.
func loggedInUserID(ctx context.Context) string {
	return middleware.GetSession(ctx).UserID()
}

// compileUserID returns the user id compiles and output files are keyed by.
func (h *Handlers) compileUserID(ctx context.Context) string {
	return h.compiler.CompileUserID(loggedInUserID(ctx))
}

// limits resolves the compile limits of projectID. Unknown projects run
// under the defaults.
func (h *Handlers) limits(ctx context.Context, projectID string) (project.Limits, error) {
	if h.projects == nil {
		return h.defaults, nil
	}
	l, err := h.projects.GetCompileLimits(ctx, projectID)
	switch {
	case errors.Is(err, project.ErrNotFound):
		return h.defaults, nil
	case err != nil:
		return project.Limits{}, err
	}
	return *l, nil
}

// route builds the backend route for projectID. An explicit clsiserverid
// query parameter pins the server.
func (h *Handlers) route(ctx context.Context, r *http.Request, projectID string) (clsi.Route, error) {
	l, err := h.limits(ctx, projectID)
	if err != nil {
		return clsi.Route{}, err
	}
	return clsi.Route{
		CompileGroup: l.CompileGroup,
		BackendClass: l.BackendClass,
		ServerID:     r.URL.Query().Get("clsiserverid"),
	}, nil
}

func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, errResp := proxy.HandleError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", "error", err, "status", status)
	} else {
		h.logger.DebugContext(ctx, "request rejected", "error", err, "status", status)
	}
	h.writeErrorResponse(ctx, w, status, errResp)
}

func (h *Handlers) writeErrorResponse(ctx context.Context, w http.ResponseWriter, status int, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, status, errResp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, data any) {
	if err := proxy.WriteJSONResponse(w, http.StatusOK, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// writeRaw writes a backend JSON body through unchanged.
func (h *Handlers) writeRaw(ctx context.Context, w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.DebugContext(ctx, "failed to write response", "error", err)
	}
}

// extendWriteDeadline keeps a held-open response from hitting the server
// write timeout.
func (h *Handlers) extendWriteDeadline(w http.ResponseWriter) {
	if h.compileTimeout <= 0 {
		return
	}
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.compileTimeout))
}
