package compile

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"mercator-hq/compilegate/pkg/affinity"
	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
)

// SubmissionInvoker compiles anonymous submissions. *clsi.Client
// implements it.
type SubmissionInvoker interface {
	SendExternalRequest(ctx context.Context, submissionID string, sub clsi.SubmissionRequest) (*clsi.Result, error)
}

// SubmissionBody is the JSON body of a public API submission.
type SubmissionBody struct {
	RootResourcePath string          `json:"rootResourcePath,omitempty"`
	Compiler         string          `json:"compiler,omitempty"`
	Draft            bool            `json:"draft,omitempty"`
	Check            string          `json:"check,omitempty"`
	CompileGroup     string          `json:"compileGroup,omitempty"`
	Timeout          int             `json:"timeout,omitempty"` // seconds
	Resources        json.RawMessage `json:"resources,omitempty"`
}

// SubmissionResult is the response to a submission compile.
type SubmissionResult struct {
	Status             string            `json:"status"`
	OutputFiles        []clsi.OutputFile `json:"outputFiles"`
	ClsiServerID       string            `json:"clsiServerId,omitempty"`
	ValidationProblems json.RawMessage   `json:"validationProblems,omitempty"`
}

// SubmissionConfig configures a SubmissionRunner.
type SubmissionConfig struct {
	Invoker   SubmissionInvoker
	Heartbeat *heartbeat.Emitter
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	DefaultCompileGroup affinity.CompileGroup
	BackendClass        affinity.BackendClass
	DefaultTimeout      time.Duration
}

// SubmissionRunner compiles resources posted through the public API. There
// is no project or user behind a submission.
type SubmissionRunner struct {
	cfg    SubmissionConfig
	logger *slog.Logger
}

// NewSubmissionRunner creates a SubmissionRunner.
func NewSubmissionRunner(cfg SubmissionConfig) *SubmissionRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionRunner{cfg: cfg, logger: logger.With("component", "compile.submission")}
}

// CompileSubmission compiles one submission with the heartbeat running.
func (s *SubmissionRunner) CompileSubmission(ctx context.Context, submissionID string, body SubmissionBody, hooks Hooks) (*SubmissionResult, error) {
	if submissionID == "" {
		return nil, &ValidationError{Field: "submission_id", Reason: "required"}
	}

	opts, err := s.options(body)
	if err != nil {
		return nil, err
	}

	stop := s.cfg.Heartbeat.Start(hooks.Heartbeat)
	start := time.Now()
	res, err := s.cfg.Invoker.SendExternalRequest(ctx, submissionID, clsi.SubmissionRequest{
		Options:          opts,
		RootResourcePath: body.RootResourcePath,
		Resources:        body.Resources,
	})
	stop()
	if err != nil {
		s.cfg.Metrics.RecordCompileError()
		return nil, err
	}
	s.cfg.Metrics.RecordCompile(res.Status, time.Since(start))
	s.logger.DebugContext(ctx, "submission compiled", "submission_id", submissionID, "status", res.Status)

	out := &SubmissionResult{
		Status:             res.Status,
		OutputFiles:        res.OutputFiles,
		ClsiServerID:       res.ClsiServerID,
		ValidationProblems: res.ValidationProblems,
	}
	if out.OutputFiles == nil {
		out.OutputFiles = []clsi.OutputFile{}
	}
	return out, nil
}

// RouteFor returns the backend route of a submission given the compile
// group the caller asked for.
func (s *SubmissionRunner) RouteFor(group string) (clsi.Route, error) {
	route := clsi.Route{CompileGroup: s.cfg.DefaultCompileGroup, BackendClass: s.cfg.BackendClass}
	if group == "" {
		return route, nil
	}
	g, err := affinity.ParseCompileGroup(group)
	if err != nil {
		return clsi.Route{}, &ValidationError{Field: "compileGroup", Reason: err.Error()}
	}
	route.CompileGroup = g
	return route, nil
}

func (s *SubmissionRunner) options(body SubmissionBody) (clsi.CompileOptions, error) {
	route, err := s.RouteFor(body.CompileGroup)
	if err != nil {
		return clsi.CompileOptions{}, err
	}

	opts := clsi.CompileOptions{
		Route:   route,
		Timeout: s.cfg.DefaultTimeout,
		Draft:   body.Draft,
	}
	if body.Timeout > 0 {
		opts.Timeout = time.Duration(body.Timeout) * time.Second
	}
	if body.Compiler != "" {
		if !slices.Contains(Compilers, body.Compiler) {
			return clsi.CompileOptions{}, &ValidationError{Field: "compiler", Reason: "unsupported compiler " + body.Compiler}
		}
		opts.Compiler = body.Compiler
	}
	if slices.Contains(checkModes, body.Check) {
		opts.Check = body.Check
	}
	return opts, nil
}
