// Package server assembles the compilegate HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"

	"mercator-hq/compilegate/pkg/config"
	"mercator-hq/compilegate/pkg/proxy/handlers"
	"mercator-hq/compilegate/pkg/proxy/middleware"
	"mercator-hq/compilegate/pkg/telemetry/health"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
	"mercator-hq/compilegate/pkg/telemetry/tracing"
)

// Config wires a Server. Server and Handlers are required.
type Config struct {
	Server *config.ServerConfig

	Handlers *handlers.Handlers

	// ShortTimeout bounds the non-compile backend routes.
	ShortTimeout time.Duration

	// Realtime is the compile socket endpoint, mounted at RealtimePath when
	// set.
	Realtime     http.Handler
	RealtimePath string

	Sessions middleware.SessionConfig

	Health *health.Checker

	Metrics     *metrics.Collector
	MetricsPath string

	Tracer *tracing.Tracer

	Version   string
	Commit    string
	BuildTime string

	Logger *slog.Logger
}

// Server is the compilegate HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Server == nil {
		return nil, errors.New("server config is nil")
	}
	if cfg.Handlers == nil {
		return nil, errors.New("handlers are nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "server"),
	}, nil
}

// Start listens on the configured address and serves until ctx is done or
// the listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting compilegate server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return multierr.Append(err, s.Shutdown(context.Background()))
	}
}

// Shutdown gracefully stops the server within the configured shutdown
// timeout. Held-open compile responses are waited for until it expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.Unlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = multierr.Append(
				fmt.Errorf("server shutdown error: %w", err),
				srv.Close(),
			)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("compilegate server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.cfg.Handlers.Register(mux, s.cfg.ShortTimeout)

	if s.cfg.Realtime != nil && s.cfg.RealtimePath != "" {
		mux.Handle("GET "+s.cfg.RealtimePath, s.cfg.Realtime)
	}
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux, s.cfg.Version, s.cfg.Commit, s.cfg.BuildTime)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics.Handler())
	}

	var handler http.Handler = mux

	// Sessions load inside CORS so preflights never touch the store.
	if s.cfg.Sessions.Store != nil {
		handler = middleware.SessionMiddleware(s.cfg.Sessions)(handler)
	}

	handler = middleware.CORSMiddleware(middleware.CORSConfigFrom(&s.cfg.Server.CORS))(handler)

	handler = tracing.HTTPMiddleware(s.cfg.Tracer)(handler)

	handler = middleware.LoggingMiddleware(handler)

	handler = middleware.RequestIDMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}
