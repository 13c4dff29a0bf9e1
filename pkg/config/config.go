package config

import "time"

// Config is the root configuration structure for compilegate.
// It contains all configuration sections for the HTTP server, the CLSI
// backend client, compile coordination, the realtime compile channel,
// collaborator stores and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and CORS.
	Server ServerConfig `yaml:"server"`

	// CLSI contains the compile backend endpoint and affinity cookie settings.
	CLSI CLSIConfig `yaml:"clsi"`

	// Compile contains compile timeouts, heartbeats and default limits.
	Compile CompileConfig `yaml:"compile"`

	// CompileWS contains realtime compile channel settings.
	CompileWS CompileWSConfig `yaml:"compilews"`

	// Proxy contains output file streaming settings.
	Proxy ProxyConfig `yaml:"proxy"`

	// Affinity contains backend affinity store settings.
	Affinity AffinityConfig `yaml:"affinity"`

	// Session contains session cookie and session store settings.
	Session SessionConfig `yaml:"session"`

	// Projects contains the project directory source.
	Projects ProjectsConfig `yaml:"projects"`

	// SplitTests contains the split-test assignment source.
	SplitTests SplitTestsConfig `yaml:"split_tests"`

	// Analytics contains analytics event recording settings.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Features toggles optional deployment features.
	Features FeaturesConfig `yaml:"features"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:3000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes. It must exceed the compile
	// timeout because compile responses are held open.
	// Default: 11m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the graceful shutdown window.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing settings.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. ["*"] allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists headers exposed to the browser.
	// Default: ["X-Request-ID", "Content-Disposition"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials allows cookies on cross-origin requests.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// CLSIConfig contains configuration for the compile backend.
type CLSIConfig struct {
	// URL is the base URL of the CLSI service (e.g. "http://clsi:3013").
	URL string `yaml:"url"`

	// CookieName is the name of the affinity cookie the backend load
	// balancer routes on.
	// Default: "clsiserver"
	CookieName string `yaml:"cookie_name"`

	// RequestTimeout bounds non-compile calls (stop, aux files, word count, sync).
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SubmissionBackendClass is the backend class used for anonymous
	// submission compiles.
	// Default: "n2d"
	SubmissionBackendClass string `yaml:"submission_backend_class"`

	// MaxIdleConns is the idle connection pool size.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the per-host idle connection pool size.
	// Default: 20
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`
}

// CompileConfig contains compile coordination settings.
type CompileConfig struct {
	// Timeout bounds a full compile call. Env: COMPILE_TIMEOUT_MS.
	// Default: 10m
	Timeout time.Duration `yaml:"timeout"`

	// HeartbeatInterval is the HTTP 102 keepalive interval. Negative disables.
	// Env: COMPILE_HEARTBEAT_MS.
	// Default: 10s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// DefaultCompileGroup is used when the project directory has no limits.
	// Default: "standard"
	DefaultCompileGroup string `yaml:"default_compile_group"`

	// DefaultBackendClass is used when the project directory has no limits.
	// Default: "n2d"
	DefaultBackendClass string `yaml:"default_backend_class"`

	// DefaultUserTimeout is the per-compile timeout handed to the backend.
	// Default: 240s
	DefaultUserTimeout time.Duration `yaml:"default_user_timeout"`

	// PDFDownloadDomain is prefixed to outputUrlPrefix in compile responses.
	PDFDownloadDomain string `yaml:"pdf_download_domain"`

	// DisablePerUserCompiles makes every compile share the project output
	// directory.
	DisablePerUserCompiles bool `yaml:"disable_per_user_compiles"`
}

// CompileWSConfig contains realtime compile channel settings.
type CompileWSConfig struct {
	// Enabled mounts the socket endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the upgrade path.
	// Default: "/compile-ws"
	Path string `yaml:"path"`

	// HeartbeatInterval is the liveness frame interval.
	// Env: COMPILE_WS_HEARTBEAT_MS.
	// Default: 10s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// StatusInterval is the compile-status "running" interval.
	// Env: COMPILE_WS_STATUS_MS.
	// Default: HeartbeatInterval
	StatusInterval time.Duration `yaml:"status_interval"`

	// ReconnectDelay is used by the Go client while waits are pending.
	// Env: COMPILE_WS_RECONNECT_DELAY_MS.
	// Default: 1s
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// ConnectTimeout bounds the client dial.
	// Env: COMPILE_WS_CONNECT_TIMEOUT_MS.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// WriteTimeout bounds a single frame write.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ReadLimit is the maximum inbound frame size in bytes.
	// Default: 64KB
	ReadLimit int64 `yaml:"read_limit"`

	// AllowedOrigins restricts upgrade origins. Empty allows same-host only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProxyConfig contains output file streaming settings.
type ProxyConfig struct {
	// Timeout bounds an upstream output fetch.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// BufferSize is the copy buffer size in bytes.
	// Default: 32KB
	BufferSize int `yaml:"buffer_size"`

	// PDFDownloadLimit limits PDF downloads per client address.
	PDFDownloadLimit RateLimitConfig `yaml:"pdf_download_limit"`
}

// RateLimitConfig describes a rate of Requests per Window.
type RateLimitConfig struct {
	// Requests per window. 0 disables the limiter.
	// Default: 1000
	Requests int `yaml:"requests"`

	// Window is the accounting window.
	// Default: 1h
	Window time.Duration `yaml:"window"`

	// MaxClients bounds the number of tracked client addresses.
	// Default: 10000
	MaxClients int `yaml:"max_clients"`
}

// AffinityConfig contains backend affinity store settings.
type AffinityConfig struct {
	// Backend selects the store: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is how long a recorded server id stays sticky.
	// Default: 24h
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the memory store.
	// Default: 100000
	MaxEntries int `yaml:"max_entries"`

	// SQLite contains the sqlite store settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// PruneSchedule is a cron expression for pruning expired rows.
	// Default: "*/15 * * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is the WAL checkpoint interval.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// SessionConfig contains session cookie and store settings.
type SessionConfig struct {
	// CookieName is the session cookie name.
	// Default: "overleaf.sid"
	CookieName string `yaml:"cookie_name"`

	// Secrets are tried in order when verifying signed cookies.
	Secrets []string `yaml:"secrets"`

	// Store selects the session store: "memory" or "sqlite".
	// Default: "memory"
	Store string `yaml:"store"`

	// SQLite contains the sqlite session store settings.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// ProjectsConfig contains the project directory source.
type ProjectsConfig struct {
	// FilePath is a YAML file describing projects, owners and limits.
	FilePath string `yaml:"file_path"`

	// Watch reloads the file on change.
	Watch bool `yaml:"watch"`
}

// SplitTestsConfig contains the split-test assignment source.
type SplitTestsConfig struct {
	// FilePath is a YAML file of split-test variants.
	FilePath string `yaml:"file_path"`

	// Watch reloads the file on change.
	Watch bool `yaml:"watch"`
}

// AnalyticsConfig contains analytics event settings.
type AnalyticsConfig struct {
	// Enabled toggles event recording.
	// Default: true
	Enabled *bool `yaml:"enabled"`
}

// FeaturesConfig toggles deployment features.
type FeaturesConfig struct {
	// SaaS enables CLSI cache population and restore options.
	SaaS bool `yaml:"saas"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "compilegate"
	Namespace string `yaml:"namespace"`

	// DurationBuckets defines histogram buckets in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds exporter calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "compilegate"
	ServiceName string `yaml:"service_name"`
}

// WebSocketEnabled reports whether the realtime channel is mounted.
func (c *CompileWSConfig) WebSocketEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AnalyticsEnabled reports whether analytics events are recorded.
func (c *AnalyticsConfig) AnalyticsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MetricsEnabled reports whether metrics are collected and served.
func (c *MetricsConfig) MetricsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
