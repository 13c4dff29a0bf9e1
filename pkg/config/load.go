package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Two families of variables are honoured:
//
//   - the compile tunables COMPILE_HEARTBEAT_MS, COMPILE_WS_HEARTBEAT_MS,
//     COMPILE_WS_STATUS_MS, COMPILE_TIMEOUT_MS, COMPILE_WS_RECONNECT_DELAY_MS
//     and COMPILE_WS_CONNECT_TIMEOUT_MS, in milliseconds
//   - COMPILEGATE_SECTION_FIELD (e.g. COMPILEGATE_CLSI_URL)
//
// Unset or non-numeric millisecond values keep the configured value.
// Environment variables always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to cfg.
func ApplyEnvOverrides(cfg *Config) {
	wsHeartbeatSet := false

	// Compile tunables
	if d, ok := envMillis("COMPILE_HEARTBEAT_MS"); ok {
		cfg.Compile.HeartbeatInterval = d
	}
	if d, ok := envMillis("COMPILE_TIMEOUT_MS"); ok {
		cfg.Compile.Timeout = d
	}
	if d, ok := envMillis("COMPILE_WS_HEARTBEAT_MS"); ok {
		cfg.CompileWS.HeartbeatInterval = d
		wsHeartbeatSet = true
	}
	if d, ok := envMillis("COMPILE_WS_STATUS_MS"); ok {
		cfg.CompileWS.StatusInterval = d
	} else if wsHeartbeatSet {
		// Status frames follow the heartbeat unless set explicitly.
		cfg.CompileWS.StatusInterval = cfg.CompileWS.HeartbeatInterval
	}
	if d, ok := envMillis("COMPILE_WS_RECONNECT_DELAY_MS"); ok {
		cfg.CompileWS.ReconnectDelay = d
	}
	if d, ok := envMillis("COMPILE_WS_CONNECT_TIMEOUT_MS"); ok {
		cfg.CompileWS.ConnectTimeout = d
	}

	// Server overrides
	if val := os.Getenv("COMPILEGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("COMPILEGATE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// CLSI overrides
	if val := os.Getenv("COMPILEGATE_CLSI_URL"); val != "" {
		cfg.CLSI.URL = val
	}
	if val := os.Getenv("COMPILEGATE_CLSI_COOKIE_NAME"); val != "" {
		cfg.CLSI.CookieName = val
	}

	// Compile overrides
	if val := os.Getenv("COMPILEGATE_COMPILE_PDF_DOWNLOAD_DOMAIN"); val != "" {
		cfg.Compile.PDFDownloadDomain = val
	}
	if val := os.Getenv("COMPILEGATE_COMPILE_DISABLE_PER_USER_COMPILES"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Compile.DisablePerUserCompiles = b
		}
	}

	// Affinity overrides
	if val := os.Getenv("COMPILEGATE_AFFINITY_BACKEND"); val != "" {
		cfg.Affinity.Backend = val
	}
	if val := os.Getenv("COMPILEGATE_AFFINITY_SQLITE_PATH"); val != "" {
		cfg.Affinity.SQLite.Path = val
	}
	if val := os.Getenv("COMPILEGATE_AFFINITY_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Affinity.TTL = d
		}
	}

	// Session overrides
	if val := os.Getenv("COMPILEGATE_SESSION_COOKIE_NAME"); val != "" {
		cfg.Session.CookieName = val
	}
	if val := os.Getenv("COMPILEGATE_SESSION_SECRETS"); val != "" {
		cfg.Session.Secrets = splitList(val)
	}
	if val := os.Getenv("COMPILEGATE_SESSION_STORE"); val != "" {
		cfg.Session.Store = val
	}
	if val := os.Getenv("COMPILEGATE_SESSION_SQLITE_PATH"); val != "" {
		cfg.Session.SQLite.Path = val
	}

	// Collaborator sources
	if val := os.Getenv("COMPILEGATE_PROJECTS_FILE_PATH"); val != "" {
		cfg.Projects.FilePath = val
	}
	if val := os.Getenv("COMPILEGATE_SPLIT_TESTS_FILE_PATH"); val != "" {
		cfg.SplitTests.FilePath = val
	}
	if val := os.Getenv("COMPILEGATE_FEATURES_SAAS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Features.SaaS = b
		}
	}

	// Telemetry overrides
	if val := os.Getenv("COMPILEGATE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("COMPILEGATE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("COMPILEGATE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("COMPILEGATE_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("COMPILEGATE_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("COMPILEGATE_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// envMillis reads a millisecond duration from the environment. It reports
// false when the variable is unset or not an integer.
func envMillis(name string) (time.Duration, bool) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
