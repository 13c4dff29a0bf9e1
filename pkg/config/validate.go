package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "clsi.url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Known closed sets. Backend classes and compile groups mirror the
// affinity package enums; they are repeated here so config stays a leaf package.
var (
	validBackendClasses = map[string]bool{"n2d": true, "c2d": true, "c3d": true, "c4d": true}
	validCompileGroups  = map[string]bool{"standard": true, "priority": true, "alpha": true}
	validStoreBackends  = map[string]bool{"memory": true, "sqlite": true}
	validLogLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats     = map[string]bool{"json": true, "text": true}
	validSamplers       = map[string]bool{"always": true, "never": true, "ratio": true}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCLSI(&cfg.CLSI)...)
	errs = append(errs, validateCompile(&cfg.Compile, &cfg.Server)...)
	errs = append(errs, validateCompileWS(&cfg.CompileWS)...)
	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateAffinity(&cfg.Affinity)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.CORS.Enabled && len(cfg.CORS.AllowedOrigins) == 0 {
		errs = append(errs, FieldError{Field: "server.cors.allowed_origins", Message: "at least one origin is required when CORS is enabled"})
	}

	return errs
}

func validateCLSI(cfg *CLSIConfig) []FieldError {
	var errs []FieldError

	if cfg.URL == "" {
		errs = append(errs, FieldError{Field: "clsi.url", Message: "CLSI URL is required"})
	} else if u, err := url.Parse(cfg.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{Field: "clsi.url", Message: fmt.Sprintf("invalid URL %q", cfg.URL)})
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{Field: "clsi.request_timeout", Message: "request timeout must be positive"})
	}
	if !validBackendClasses[cfg.SubmissionBackendClass] {
		errs = append(errs, FieldError{
			Field:   "clsi.submission_backend_class",
			Message: fmt.Sprintf("unknown backend class %q", cfg.SubmissionBackendClass),
		})
	}

	return errs
}

func validateCompile(cfg *CompileConfig, server *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "compile.timeout", Message: "compile timeout must be positive"})
	}
	if server.WriteTimeout > 0 && cfg.Timeout > server.WriteTimeout {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must exceed compile.timeout",
		})
	}
	if !validCompileGroups[cfg.DefaultCompileGroup] {
		errs = append(errs, FieldError{
			Field:   "compile.default_compile_group",
			Message: fmt.Sprintf("unknown compile group %q", cfg.DefaultCompileGroup),
		})
	}
	if !validBackendClasses[cfg.DefaultBackendClass] {
		errs = append(errs, FieldError{
			Field:   "compile.default_backend_class",
			Message: fmt.Sprintf("unknown backend class %q", cfg.DefaultBackendClass),
		})
	}

	return errs
}

func validateCompileWS(cfg *CompileWSConfig) []FieldError {
	var errs []FieldError

	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, FieldError{Field: "compilews.path", Message: "path must start with /"})
	}
	if cfg.HeartbeatInterval <= 0 {
		errs = append(errs, FieldError{Field: "compilews.heartbeat_interval", Message: "heartbeat interval must be positive"})
	}
	if cfg.StatusInterval <= 0 {
		errs = append(errs, FieldError{Field: "compilews.status_interval", Message: "status interval must be positive"})
	}
	if cfg.ReadLimit < 0 {
		errs = append(errs, FieldError{Field: "compilews.read_limit", Message: "read limit must be non-negative"})
	}

	return errs
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "proxy.timeout", Message: "timeout must be positive"})
	}
	if cfg.PDFDownloadLimit.Requests < 0 {
		errs = append(errs, FieldError{Field: "proxy.pdf_download_limit.requests", Message: "requests must be non-negative"})
	}
	if cfg.PDFDownloadLimit.Window <= 0 {
		errs = append(errs, FieldError{Field: "proxy.pdf_download_limit.window", Message: "window must be positive"})
	}

	return errs
}

func validateAffinity(cfg *AffinityConfig) []FieldError {
	var errs []FieldError

	if !validStoreBackends[cfg.Backend] {
		errs = append(errs, FieldError{Field: "affinity.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)})
	}
	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{Field: "affinity.ttl", Message: "ttl must be positive"})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{Field: "affinity.sqlite.path", Message: "path is required for sqlite backend"})
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, FieldError{Field: "affinity.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}

	return errs
}

func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	if cfg.CookieName == "" {
		errs = append(errs, FieldError{Field: "session.cookie_name", Message: "cookie name is required"})
	}
	if !validStoreBackends[cfg.Store] {
		errs = append(errs, FieldError{Field: "session.store", Message: fmt.Sprintf("unknown store %q", cfg.Store)})
	}
	for i, secret := range cfg.Secrets {
		if secret == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("session.secrets[%d]", i), Message: "secret must not be empty"})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("unknown sampler %q", cfg.Tracing.Sampler)})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
		}
	}

	return errs
}
