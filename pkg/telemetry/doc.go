// Package telemetry groups the observability packages of compilegate.
//
//   - logging: slog construction and request-scoped log fields
//   - metrics: Prometheus collector on a private registry
//   - tracing: OpenTelemetry tracer with an OTLP gRPC exporter
//   - health: liveness and readiness probes
//
// Every collaborator accepts a nil *metrics.Collector, and tracing falls back
// to a noop tracer when disabled, so tests construct components without any
// telemetry wiring.
package telemetry
