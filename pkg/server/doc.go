// Package server assembles the compilegate HTTP server: the compile and
// output routes of the handlers package, the realtime compile socket, the
// health probes and the Prometheus scrape endpoint.
//
// Every request passes through
//
//	Recovery(RequestID(Logging(Tracing(CORS(Session(mux))))))
//
// Short backend routes additionally get a per-request timeout. Compile
// routes and output streams are bounded only by the server write timeout,
// which extends the per-response deadline of held-open compiles.
//
// Usage:
//
//	srv, err := server.New(server.Config{
//	    Server:       &cfg.Server,
//	    Handlers:     h,
//	    ShortTimeout: cfg.CLSI.RequestTimeout,
//	    Realtime:     coordinator,
//	    RealtimePath: cfg.CompileWS.Path,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start returns after a graceful shutdown once ctx is canceled.
package server
