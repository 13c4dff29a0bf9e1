package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:3000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 11 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultCORSMaxAge      = 3600

	// CLSI defaults
	DefaultCLSICookieName          = "clsiserver"
	DefaultCLSIRequestTimeout      = 60 * time.Second
	DefaultSubmissionBackendClass  = "n2d"
	DefaultCLSIMaxIdleConns        = 100
	DefaultCLSIMaxIdleConnsPerHost = 20

	// Compile defaults
	DefaultCompileTimeout      = 10 * time.Minute
	DefaultHeartbeatInterval   = 10 * time.Second
	DefaultCompileGroup        = "standard"
	DefaultCompileBackendClass = "n2d"
	DefaultUserCompileTimeout  = 240 * time.Second

	// Realtime channel defaults
	DefaultWSPath              = "/compile-ws"
	DefaultWSHeartbeatInterval = 10 * time.Second
	DefaultWSReconnectDelay    = time.Second
	DefaultWSConnectTimeout    = 5 * time.Second
	DefaultWSWriteTimeout      = 10 * time.Second
	DefaultWSReadLimit         = 64 * 1024

	// Proxy defaults
	DefaultProxyTimeout         = 60 * time.Second
	DefaultProxyBufferSize      = 32 * 1024
	DefaultPDFDownloadRequests  = 1000
	DefaultPDFDownloadWindow    = time.Hour
	DefaultPDFDownloadMaxClient = 10000

	// Affinity defaults
	DefaultAffinityBackend       = "memory"
	DefaultAffinityTTL           = 24 * time.Hour
	DefaultAffinityMaxEntries    = 100000
	DefaultAffinitySQLitePath    = "data/affinity.db"
	DefaultAffinityPruneSchedule = "*/15 * * * *"
	DefaultSQLiteBusyTimeout     = 5 * time.Second
	DefaultSQLiteCheckpoint      = 5 * time.Minute

	// Session defaults
	DefaultSessionCookieName = "overleaf.sid"
	DefaultSessionStore      = "memory"
	DefaultSessionSQLitePath = "data/sessions.db"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "compilegate"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 0.1
	DefaultTracingTimeout      = 10 * time.Second
	DefaultTracingServiceName  = "compilegate"
)

// DefaultDurationBuckets cover proxy and compile latencies from 100ms to
// the 60s proxy deadline.
var DefaultDurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 20, 30, 40, 50, 60}

// ApplyDefaults fills unset fields with default values. Fields that already
// carry a non-zero value are left untouched.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyCLSIDefaults(&cfg.CLSI)
	applyCompileDefaults(&cfg.Compile)
	applyCompileWSDefaults(&cfg.CompileWS)
	applyProxyDefaults(&cfg.Proxy)
	applyAffinityDefaults(&cfg.Affinity)
	applySessionDefaults(&cfg.Session)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if len(cfg.CORS.AllowedMethods) == 0 {
		cfg.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.CORS.AllowedHeaders) == 0 {
		cfg.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if len(cfg.CORS.ExposedHeaders) == 0 {
		cfg.CORS.ExposedHeaders = []string{"X-Request-ID", "Content-Disposition"}
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyCLSIDefaults(cfg *CLSIConfig) {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCLSICookieName
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultCLSIRequestTimeout
	}
	if cfg.SubmissionBackendClass == "" {
		cfg.SubmissionBackendClass = DefaultSubmissionBackendClass
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultCLSIMaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = DefaultCLSIMaxIdleConnsPerHost
	}
}

func applyCompileDefaults(cfg *CompileConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCompileTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DefaultCompileGroup == "" {
		cfg.DefaultCompileGroup = DefaultCompileGroup
	}
	if cfg.DefaultBackendClass == "" {
		cfg.DefaultBackendClass = DefaultCompileBackendClass
	}
	if cfg.DefaultUserTimeout == 0 {
		cfg.DefaultUserTimeout = DefaultUserCompileTimeout
	}
}

func applyCompileWSDefaults(cfg *CompileWSConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultWSPath
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultWSHeartbeatInterval
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = cfg.HeartbeatInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultWSReconnectDelay
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultWSConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWSWriteTimeout
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = DefaultWSReadLimit
	}
}

func applyProxyDefaults(cfg *ProxyConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultProxyTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultProxyBufferSize
	}
	if cfg.PDFDownloadLimit.Requests == 0 {
		cfg.PDFDownloadLimit.Requests = DefaultPDFDownloadRequests
	}
	if cfg.PDFDownloadLimit.Window == 0 {
		cfg.PDFDownloadLimit.Window = DefaultPDFDownloadWindow
	}
	if cfg.PDFDownloadLimit.MaxClients == 0 {
		cfg.PDFDownloadLimit.MaxClients = DefaultPDFDownloadMaxClient
	}
}

func applyAffinityDefaults(cfg *AffinityConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAffinityBackend
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultAffinityTTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultAffinityMaxEntries
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultAffinityPruneSchedule
	}
	applySQLiteDefaults(&cfg.SQLite, DefaultAffinitySQLitePath)
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookieName
	}
	if cfg.Store == "" {
		cfg.Store = DefaultSessionStore
	}
	applySQLiteDefaults(&cfg.SQLite, DefaultSessionSQLitePath)
}

func applySQLiteDefaults(cfg *SQLiteConfig, path string) {
	if cfg.Path == "" {
		cfg.Path = path
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = DefaultSQLiteCheckpoint
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
}
