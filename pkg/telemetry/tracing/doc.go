// Package tracing provides OpenTelemetry tracing for compilegate.
//
// # Overview
//
// Spans are created around inbound HTTP requests, compile orchestration and
// every outbound backend call. Trace context is propagated with the W3C
// traceparent and baggage headers, so a compile can be followed from the
// editor request through to the CLSI server that ran it.
//
// # Sampling
//
// Three strategies are supported:
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample a fraction of traces by trace ID
//
// All strategies respect the parent span's decision when one is present.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "compile.project")
//	defer span.End()
//
// When tracing is disabled New returns a tracer backed by the noop provider,
// so callers never need to branch on configuration.
package tracing
