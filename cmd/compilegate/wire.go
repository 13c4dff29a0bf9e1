package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"mercator-hq/compilegate/pkg/affinity"
	"mercator-hq/compilegate/pkg/analytics"
	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/compilews"
	"mercator-hq/compilegate/pkg/config"
	"mercator-hq/compilegate/pkg/filewatch"
	"mercator-hq/compilegate/pkg/heartbeat"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/proxy"
	"mercator-hq/compilegate/pkg/proxy/handlers"
	"mercator-hq/compilegate/pkg/proxy/middleware"
	"mercator-hq/compilegate/pkg/server"
	"mercator-hq/compilegate/pkg/session"
	"mercator-hq/compilegate/pkg/splittest"
	"mercator-hq/compilegate/pkg/telemetry/health"
	"mercator-hq/compilegate/pkg/telemetry/metrics"
	"mercator-hq/compilegate/pkg/telemetry/tracing"
)

// analyticsQueueSize bounds analytics events waiting to be recorded.
const analyticsQueueSize = 1024

// app holds every long-lived component of a running compilegate.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	server      *server.Server
	coordinator *compilews.Coordinator
	projects    *project.FileDirectory
	splitTests  *splittest.Manager
	pruner      *affinity.Pruner
	health      *health.Checker

	affinityStore affinity.Store
	sessionStore  session.Store
	queue         *analytics.Queue
	tracer        *tracing.Tracer
}

// buildApp wires the components described by cfg. On error every component
// opened so far is closed again.
func buildApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close(context.Background()))
		}
	}()

	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.MetricsEnabled() {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	a.affinityStore, err = affinity.Open(&cfg.Affinity)
	if err != nil {
		return nil, fmt.Errorf("failed to open affinity store: %w", err)
	}
	a.sessionStore, err = session.Open(&cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.pruner = affinity.NewPruner(a.affinityStore, cfg.Affinity.PruneSchedule)

	defaults := project.Defaults{
		CompileGroup:        cfg.Compile.DefaultCompileGroup,
		CompileBackendClass: cfg.Compile.DefaultBackendClass,
		Timeout:             cfg.Compile.DefaultUserTimeout,
	}
	a.projects, err = project.NewFileDirectory(cfg.Projects.FilePath, defaults, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	a.splitTests, err = splittest.NewManager(cfg.SplitTests.FilePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load split tests: %w", err)
	}

	selector := affinity.NewSelector(a.affinityStore, affinity.SelectorConfig{
		TTL:        cfg.Affinity.TTL,
		CookieName: cfg.CLSI.CookieName,
		Logger:     logger,
	})
	backend, err := clsi.NewClient(clsi.ClientConfig{
		BaseURL:             cfg.CLSI.URL,
		CompileTimeout:      cfg.Compile.Timeout,
		RequestTimeout:      cfg.CLSI.RequestTimeout,
		MaxIdleConns:        cfg.CLSI.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.CLSI.MaxIdleConnsPerHost,
		Tracer:              a.tracer.Tracer(),
		Logger:              logger,
	}, selector)
	if err != nil {
		return nil, err
	}

	var recorder analytics.Recorder = analytics.Nop{}
	if cfg.Analytics.AnalyticsEnabled() {
		a.queue = analytics.NewQueue(analytics.NewLogRecorder(logger), analyticsQueueSize, logger)
		recorder = a.queue
	}

	keepalive := heartbeat.NewEmitter(heartbeat.Config{
		Interval: cfg.Compile.HeartbeatInterval,
		OnPing:   func() { collector.RecordHeartbeat("http") },
		Logger:   logger,
	})

	orchestrator := compile.NewOrchestrator(compile.Config{
		Invoker:                backend,
		Limits:                 a.projects,
		Assigner:               a.splitTests,
		Recorder:               recorder,
		Heartbeat:              keepalive,
		Metrics:                collector,
		Tracer:                 a.tracer.Tracer(),
		Logger:                 logger,
		Defaults:               a.projects.DefaultLimits(),
		PDFDownloadDomain:      cfg.Compile.PDFDownloadDomain,
		DisablePerUserCompiles: cfg.Compile.DisablePerUserCompiles,
		SaaS:                   cfg.Features.SaaS,
	})
	submissions := compile.NewSubmissionRunner(compile.SubmissionConfig{
		Invoker:             backend,
		Heartbeat:           keepalive,
		Metrics:             collector,
		Logger:              logger,
		DefaultCompileGroup: affinity.CompileGroup(cfg.Compile.DefaultCompileGroup),
		BackendClass:        affinity.BackendClass(cfg.CLSI.SubmissionBackendClass),
		DefaultTimeout:      cfg.Compile.DefaultUserTimeout,
	})

	streamer := proxy.NewProxy(proxy.Config{
		Upstream:   backend,
		Timeout:    cfg.Proxy.Timeout,
		BufferSize: cfg.Proxy.BufferSize,
		Metrics:    collector,
		Tracer:     a.tracer.Tracer(),
		Logger:     logger,
	})

	hcfg := handlers.Config{
		Compiler:       orchestrator,
		Backend:        backend,
		Streamer:       streamer,
		Submissions:    submissions,
		Projects:       a.projects,
		Authorizer:     a.projects,
		Limiter:        proxy.NewDownloadLimiter(cfg.Proxy.PDFDownloadLimit),
		Defaults:       a.projects.DefaultLimits(),
		CompileTimeout: cfg.Compile.Timeout,
		Metrics:        collector,
		Logger:         logger,
	}

	scfg := server.Config{
		Server:       &cfg.Server,
		ShortTimeout: cfg.CLSI.RequestTimeout,
		Sessions: middleware.SessionConfig{
			Store:      a.sessionStore,
			CookieName: cfg.Session.CookieName,
			Secrets:    cfg.Session.Secrets,
			Logger:     logger,
		},
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Tracer:      a.tracer,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
		Logger:      logger,
	}

	if cfg.CompileWS.WebSocketEnabled() {
		a.coordinator = compilews.NewCoordinator(compilews.CoordinatorConfig{
			Sessions:          a.sessionStore,
			Authorizer:        a.projects,
			Compiler:          orchestrator,
			CookieName:        cfg.Session.CookieName,
			Secrets:           cfg.Session.Secrets,
			HeartbeatInterval: cfg.CompileWS.HeartbeatInterval,
			StatusInterval:    cfg.CompileWS.StatusInterval,
			WriteTimeout:      cfg.CompileWS.WriteTimeout,
			ReadLimit:         cfg.CompileWS.ReadLimit,
			AllowedOrigins:    cfg.CompileWS.AllowedOrigins,
			Metrics:           collector,
			Logger:            logger,
		})
		hcfg.Fanout = a.coordinator
		scfg.Realtime = a.coordinator
		scfg.RealtimePath = cfg.CompileWS.Path
	}

	a.health = health.New(0)
	a.health.RegisterCheck("clsi", health.HTTPCheck(backend.HTTPClient(), strings.TrimSuffix(cfg.CLSI.URL, "/")+"/status"))
	if p, ok := a.affinityStore.(health.Pinger); ok {
		a.health.RegisterCheck("affinity_store", health.PingCheck(p))
	}
	if p, ok := a.sessionStore.(health.Pinger); ok {
		a.health.RegisterCheck("session_store", health.PingCheck(p))
	}
	scfg.Health = a.health

	scfg.Handlers = handlers.New(hcfg)
	a.server, err = server.New(scfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Run serves until ctx is done or a component fails. The first failure
// cancels the others.
func (a *app) Run(ctx context.Context) error {
	if err := a.pruner.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Start(gctx) })
	if a.coordinator != nil {
		g.Go(func() error { return a.coordinator.Run(gctx) })
	}
	if a.cfg.Projects.Watch && a.cfg.Projects.FilePath != "" {
		w := filewatch.New(a.cfg.Projects.FilePath, 0, a.logger)
		g.Go(func() error { return w.Run(gctx, a.projects.Reload) })
	}
	if a.cfg.SplitTests.Watch && a.cfg.SplitTests.FilePath != "" {
		w := filewatch.New(a.cfg.SplitTests.FilePath, 0, a.logger)
		g.Go(func() error { return w.Run(gctx, a.splitTests.Reload) })
	}
	return g.Wait()
}

// Close releases every component. It is safe to call on a partially built
// app.
func (a *app) Close(ctx context.Context) error {
	var err error
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.queue != nil {
		err = multierr.Append(err, a.queue.Close(ctx))
	}
	if a.sessionStore != nil {
		err = multierr.Append(err, a.sessionStore.Close())
	}
	if a.affinityStore != nil {
		err = multierr.Append(err, a.affinityStore.Close())
	}
	if a.tracer != nil {
		err = multierr.Append(err, a.tracer.Shutdown(ctx))
	}
	return err
}
