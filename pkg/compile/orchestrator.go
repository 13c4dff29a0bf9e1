package compile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/compilegate/pkg/analytics"
	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/splittest"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
	"mercator-hq/compilegate/pkg/telemetry/tracing"
)

// Split tests and events consulted while compiling.
const (
	TestPDFCachingMode         = "pdf-caching-mode"
	TestPDFCachingMinChunkSize = "pdf-caching-min-chunk-size"
	EventCompileResultBackend  = "compile-result-backend"

	// DefaultPDFCachingMinChunkSize applies when the chunk size test
	// assigns the default variant.
	DefaultPDFCachingMinChunkSize = 1_000_000
)

// Invoker runs backend compiles. *clsi.Client implements it.
type Invoker interface {
	Compile(ctx context.Context, projectID, userID string, opts clsi.CompileOptions) (*clsi.Result, error)
}

// LimitsResolver returns the compile limits of a project.
type LimitsResolver interface {
	GetCompileLimits(ctx context.Context, projectID string) (*project.Limits, error)
}

// Assigner returns split-test variants. *splittest.Manager implements it.
type Assigner interface {
	GetAssignment(ctx context.Context, analyticsID, testName string, overrides url.Values) string
}

// Fanout delivers a finished compile to realtime listeners.
type Fanout interface {
	EmitCompileResult(projectID, userID, sessionID string, res *Response)
}

// Hooks are optional per-call collaborators.
type Hooks struct {
	// Heartbeat receives keepalive pings while the compile runs.
	Heartbeat heartbeat.Sink
}

// ArchiveFile describes the zip of all output files of a build.
type ArchiveFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Result is the compile response sent to clients.
type Result struct {
	Status                 string             `json:"status"`
	OutputFiles            []clsi.OutputFile  `json:"outputFiles"`
	OutputFilesArchive     *ArchiveFile       `json:"outputFilesArchive"`
	CompileGroup           string             `json:"compileGroup,omitempty"`
	ClsiServerID           string             `json:"clsiServerId,omitempty"`
	ClsiCacheShard         string             `json:"clsiCacheShard,omitempty"`
	ValidationProblems     json.RawMessage    `json:"validationProblems,omitempty"`
	Stats                  map[string]any     `json:"stats,omitempty"`
	Timings                map[string]float64 `json:"timings,omitempty"`
	OutputURLPrefix        string             `json:"outputUrlPrefix,omitempty"`
	PDFDownloadDomain      string             `json:"pdfDownloadDomain,omitempty"`
	PDFCachingMinChunkSize int                `json:"pdfCachingMinChunkSize,omitempty"`
	CompileID              string             `json:"compileId,omitempty"`
	AdminHint              string             `json:"adminHint,omitempty"`
}

// Response carries the shaped result and the identity that asked for it.
type Response struct {
	Result    *Result
	UserID    string
	SessionID string
}

// Config configures an Orchestrator. Invoker and Limits are required.
type Config struct {
	Invoker  Invoker
	Limits   LimitsResolver
	Assigner Assigner

	// Recorder receives analytics events. Default: analytics.Nop.
	Recorder analytics.Recorder

	// Heartbeat emits keepalives to Hooks.Heartbeat. Nil disables.
	Heartbeat *heartbeat.Emitter

	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Logger  *slog.Logger

	// Defaults apply to projects the directory does not know.
	Defaults project.Limits

	PDFDownloadDomain      string
	DisablePerUserCompiles bool

	// SaaS asks the backend to restore from and populate the shared cache.
	SaaS bool
}

// Orchestrator runs compiles. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	tracer trace.Tracer
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Recorder == nil {
		cfg.Recorder = analytics.Nop{}
	}
	if cfg.Assigner == nil {
		cfg.Assigner = splittest.NewStaticManager(nil)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("compilegate/compile")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With("component", "compile.orchestrator"),
	}
}

// CompileUserID returns the user id compiles for userID run under: empty
// when per-user compiles are disabled.
func (o *Orchestrator) CompileUserID(userID string) string {
	if o.cfg.DisablePerUserCompiles {
		return ""
	}
	return userID
}

// CompileProject runs one compile. Validation errors are returned before
// any I/O; backend errors are returned unchanged.
func (o *Orchestrator) CompileProject(ctx context.Context, req Request, hooks Hooks) (*Response, error) {
	opts, err := normalizeOptions(&req)
	if err != nil {
		return nil, err
	}
	userID := o.CompileUserID(req.UserID)

	ctx, span := o.tracer.Start(ctx, "compile.project")
	defer span.End()

	limits, err := o.resolveLimits(ctx, req.ProjectID)
	if err != nil {
		tracing.RecordFailure(span, err)
		return nil, err
	}
	opts.Route = clsi.Route{CompileGroup: limits.CompileGroup, BackendClass: limits.BackendClass}
	opts.Timeout = limits.Timeout
	tracing.SetCompileAttributes(span, req.ProjectID, userID, string(limits.CompileGroup), string(limits.BackendClass))

	o.applySplitTests(ctx, &req, &opts)
	if o.cfg.SaaS {
		opts.CompileFromClsiCache = true
		opts.PopulateClsiCache = true
	}

	start := time.Now()
	res, err := o.invoke(ctx, req.ProjectID, userID, opts, hooks)
	if err != nil {
		o.cfg.Metrics.RecordCompileError()
		tracing.RecordFailure(span, err)
		return nil, err
	}
	o.cfg.Metrics.RecordCompile(res.Status, time.Since(start))
	tracing.SetCompileResult(span, res.Status, res.ClsiServerID)

	if res.Status == clsi.StatusUnavailable {
		o.logger.WarnContext(ctx, "compile backend unavailable",
			"project_id", req.ProjectID,
			"admin_hint", res.AdminHint,
		)
	}

	o.recordResult(ctx, &req, limits, &opts, res)

	return &Response{
		Result:    o.shape(req.ProjectID, userID, req.Body.CompileID, limits, &opts, res),
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}, nil
}

// invoke calls the backend with the heartbeat running for the duration of
// the call.
func (o *Orchestrator) invoke(ctx context.Context, projectID, userID string, opts clsi.CompileOptions, hooks Hooks) (*clsi.Result, error) {
	stop := o.cfg.Heartbeat.Start(hooks.Heartbeat)
	defer stop()

	return o.cfg.Invoker.Compile(ctx, projectID, userID, opts)
}

// resolveLimits returns the project's limits, or the configured defaults
// when the directory does not know the project.
func (o *Orchestrator) resolveLimits(ctx context.Context, projectID string) (*project.Limits, error) {
	if o.cfg.Limits == nil {
		limits := o.cfg.Defaults
		return &limits, nil
	}
	limits, err := o.cfg.Limits.GetCompileLimits(ctx, projectID)
	if errors.Is(err, project.ErrNotFound) {
		o.logger.DebugContext(ctx, "no compile limits for project, using defaults", "project_id", projectID)
		fallback := o.cfg.Defaults
		return &fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get compile limits for %s: %w", projectID, err)
	}
	return limits, nil
}

// applySplitTests enables pdf caching only when the client asks for it and
// the caching test still assigns "enabled".
func (o *Orchestrator) applySplitTests(ctx context.Context, req *Request, opts *clsi.CompileOptions) {
	opts.EnablePdfCaching = false
	if req.Query.Get("enable_pdf_caching") == "" {
		return
	}

	overrides := splitTestOverrides(req)
	if o.cfg.Assigner.GetAssignment(ctx, req.AnalyticsID, TestPDFCachingMode, overrides) != "enabled" {
		return
	}
	opts.EnablePdfCaching = true
	opts.PdfCachingMinChunkSize = DefaultPDFCachingMinChunkSize

	variant := o.cfg.Assigner.GetAssignment(ctx, req.AnalyticsID, TestPDFCachingMinChunkSize, overrides)
	if variant == splittest.DefaultVariant {
		return
	}
	if n, err := strconv.Atoi(variant); err == nil && n > 0 {
		opts.PdfCachingMinChunkSize = n
	} else {
		o.logger.DebugContext(ctx, "ignoring non-numeric chunk size variant", "variant", variant)
	}
}

// recordResult emits compile-result-backend for the sampled bucket.
func (o *Orchestrator) recordResult(ctx context.Context, req *Request, limits *project.Limits, opts *clsi.CompileOptions, res *clsi.Result) {
	if limits == nil || req.AnalyticsID == "" {
		return
	}
	if splittest.Percentile(req.AnalyticsID, EventCompileResultBackend, splittest.PhaseRelease) != 1 {
		return
	}

	server := "normal"
	if strings.Contains(res.ClsiServerID, "-c4d-") {
		server = "faster"
	}
	seg := map[string]any{
		"projectId":         req.ProjectID,
		"ownerAnalyticsId":  limits.OwnerAnalyticsID,
		"status":            res.Status,
		"timeout":           int(limits.Timeout / time.Second),
		"server":            server,
		"clsiServerId":      res.ClsiServerID,
		"isAutoCompile":     opts.IsAutoCompile,
		"isInitialCompile":  statIsOne(res.Stats, "isInitialCompile"),
		"restoredClsiCache": statIsOne(res.Stats, "restoredClsiCache"),
		"stopOnFirstError":  opts.StopOnFirstError,
		"isDraftMode":       opts.Draft,
	}
	if v, ok := res.Timings["compileE2E"]; ok {
		seg["compileTime"] = v
	}

	o.cfg.Recorder.Record(ctx, analytics.Event{
		Name:         EventCompileResultBackend,
		AnalyticsID:  req.AnalyticsID,
		UserID:       req.UserID,
		Segmentation: seg,
		Time:         time.Now(),
	})
}

func statIsOne(stats map[string]any, key string) bool {
	switch v := stats[key].(type) {
	case float64:
		return v == 1
	case int:
		return v == 1
	case bool:
		return v
	}
	return false
}

// shape builds the client response from a backend result.
func (o *Orchestrator) shape(projectID, userID, compileID string, limits *project.Limits, opts *clsi.CompileOptions, res *clsi.Result) *Result {
	out := &Result{
		Status:             res.Status,
		OutputFiles:        res.OutputFiles,
		CompileGroup:       string(limits.CompileGroup),
		ClsiServerID:       res.ClsiServerID,
		ClsiCacheShard:     res.ClsiCacheShard,
		ValidationProblems: res.ValidationProblems,
		Stats:              res.Stats,
		Timings:            res.Timings,
		OutputURLPrefix:    res.OutputURLPrefix,
		CompileID:          compileID,
	}
	if out.OutputFiles == nil {
		out.OutputFiles = []clsi.OutputFile{}
	}
	if res.BuildID != "" {
		out.OutputFilesArchive = &ArchiveFile{
			Path: "output.zip",
			URL:  FileURL(projectID, userID, res.BuildID, "output.zip"),
			Type: "zip",
		}
	}

	out.PDFDownloadDomain = o.cfg.PDFDownloadDomain
	if out.PDFDownloadDomain != "" && res.OutputURLPrefix != "" {
		out.PDFDownloadDomain += res.OutputURLPrefix
	}
	if opts.EnablePdfCaching {
		out.PDFCachingMinChunkSize = opts.PdfCachingMinChunkSize
	}
	if res.Status == clsi.StatusUnavailable {
		out.AdminHint = res.AdminHint
	}
	return out
}
