// Package health provides the liveness and readiness probes of compilegate.
//
// Endpoints:
//
//   - /health: the process is serving. Always 200.
//   - /ready: every registered dependency check passed. 503 otherwise.
//   - /version: build information.
//
// Checks are registered per dependency by the run command:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("affinity_store", health.PingCheck(store))
//	checker.RegisterCheck("clsi", health.HTTPCheck(client.HTTPClient(), cfg.CLSI.URL+"/status"))
//	checker.Register(mux, version, commit, buildTime)
//
// Checks run concurrently and each is bounded by the checker timeout. A
// check that outlives it is reported unhealthy with "health check timeout".
package health
