// Package metrics provides Prometheus metrics for compilegate.
//
// # Metrics
//
//   - compile_requests_total{status}: compiles by backend status
//   - compile_errors_total: compiles that failed before a result
//   - compile_duration_seconds{status}: end-to-end compile latency
//   - proxy_requests_total{action,status}: proxied output requests
//   - proxy_duration_seconds{action,status}: proxied request latency
//   - pdf_downloads_total{outcome}: PDF downloads, allowed or rate limited
//   - ws_connections: open realtime compile connections
//   - ws_frames_total{type}: realtime frames sent by type
//   - heartbeats_total{transport}: keepalive pings by transport
//
// All metrics live on a private registry served by Handler. Every method
// is safe on a nil *Collector, which records nothing.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	collector.RecordCompile("success", time.Since(start))
package metrics
