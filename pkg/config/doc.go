// Package config provides configuration management for compilegate.
//
// Configuration is loaded from a YAML file, filled with defaults, optionally
// overridden from the environment, and validated before use.
//
//	cfg, err := config.LoadConfigWithEnvOverrides("compilegate.yaml")
//
// # Environment Variable Overrides
//
// The compile tunables keep their historical names and are expressed in
// milliseconds:
//
//   - COMPILE_TIMEOUT_MS overrides compile.timeout
//   - COMPILE_HEARTBEAT_MS overrides compile.heartbeat_interval
//   - COMPILE_WS_HEARTBEAT_MS overrides compilews.heartbeat_interval
//   - COMPILE_WS_STATUS_MS overrides compilews.status_interval
//   - COMPILE_WS_RECONNECT_DELAY_MS overrides compilews.reconnect_delay
//   - COMPILE_WS_CONNECT_TIMEOUT_MS overrides compilews.connect_timeout
//
// A value that is unset or not an integer leaves the configured value in
// place. Other fields follow COMPILEGATE_SECTION_FIELD, for example
// COMPILEGATE_CLSI_URL or COMPILEGATE_SESSION_SECRETS (comma separated).
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// The run command calls Initialize once; other code receives *Config by
// injection. GetConfig exists for the few places wired before injection is
// possible.
package config
