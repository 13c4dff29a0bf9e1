package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/compilegate/pkg/config"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.TracingConfig
		wantErr bool
		wantOn  bool
	}{
		{"nil config", nil, true, false},
		{"disabled", &config.TracingConfig{Enabled: false}, false, false},
		{"bad sampler", &config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}, true, false},
		{"bad ratio", &config.TracingConfig{Enabled: true, Sampler: "ratio", SampleRatio: 2, Endpoint: "localhost:4317"}, true, false},
		{"missing endpoint", &config.TracingConfig{Enabled: true, Sampler: "always"}, true, false},
		{"otlp", &config.TracingConfig{Enabled: true, Sampler: "always", Endpoint: "localhost:4317", Insecure: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = tr.Shutdown(context.Background()) }()

			if tr.Enabled() != tt.wantOn {
				t.Errorf("Enabled() = %v, want %v", tr.Enabled(), tt.wantOn)
			}
			if tr.Tracer() == nil {
				t.Error("Tracer() returned nil")
			}
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	if tr.Enabled() {
		t.Error("nil tracer must be disabled")
	}
	if tr.Tracer() == nil {
		t.Error("nil tracer must hand out a noop tracer")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return &Tracer{
		config:   &config.TracingConfig{Enabled: true},
		tracer:   provider.Tracer(InstrumentationName),
		provider: provider,
		enabled:  true,
	}, rec
}

func TestTraceID(t *testing.T) {
	if TraceID(context.Background()) != "" {
		t.Error("expected empty id without a span")
	}

	tr, _ := recordingTracer(t)
	ctx, span := tr.Start(context.Background(), "op")
	defer span.End()

	if len(TraceID(ctx)) != 32 {
		t.Errorf("unexpected trace id %q", TraceID(ctx))
	}
}

func TestRecordFailure(t *testing.T) {
	tr, rec := recordingTracer(t)

	_, span := tr.Start(context.Background(), "compile")
	RecordFailure(span, errors.New("backend down"))
	SetCompileAttributes(span, "p1", "", "standard", "n2d")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Status().Code != codes.Error || s.Status().Description != "backend down" {
		t.Errorf("unexpected status %+v", s.Status())
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected recorded error event, got %d", len(s.Events()))
	}

	keys := map[string]bool{}
	for _, kv := range s.Attributes() {
		keys[string(kv.Key)] = true
	}
	if keys[AttrUserID] {
		t.Error("empty user id must not be recorded")
	}
	if !keys[AttrProjectID] || !keys[AttrCompileGroup] {
		t.Errorf("missing compile attributes: %v", keys)
	}

	// nil error is a no-op
	_, span = tr.Start(context.Background(), "ok")
	RecordFailure(span, nil)
	span.End()
	if ok := rec.Ended()[1]; len(ok.Events()) != 0 || ok.Status().Code == codes.Error {
		t.Error("RecordFailure(nil) must leave the span untouched")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tr, rec := recordingTracer(t)

	var gotTrace string
	h := HTTPMiddleware(tr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = TraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/project/p1/output", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if gotTrace == "" {
		t.Fatal("handler saw no trace context")
	}
	if rr.Header().Get("X-Trace-ID") != gotTrace {
		t.Errorf("X-Trace-ID = %q, want %q", rr.Header().Get("X-Trace-ID"), gotTrace)
	}
	if len(rec.Ended()) != 1 {
		t.Errorf("expected one server span, got %d", len(rec.Ended()))
	}
}

func TestHTTPMiddleware_RouteName(t *testing.T) {
	tr, rec := recordingTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /project/{project_id}/wordcount", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := HTTPMiddleware(tr)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/project/p1/wordcount", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected two spans, got %d", len(ended))
	}
	if got := ended[0].Name(); got != "GET /project/{project_id}/wordcount" {
		t.Errorf("routed span name = %q", got)
	}
	if got := ended[1].Name(); got != "GET /nowhere" {
		t.Errorf("unrouted span name = %q", got)
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.5, false},
		{"", 0.1, false},
		{SamplerRatio, -0.1, true},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		_, err := createSampler(tt.strategy, tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
		}
	}
}
