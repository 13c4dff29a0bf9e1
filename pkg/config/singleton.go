package config

import "sync"

var (
	mu     sync.RWMutex
	global *Config
)

// Initialize loads the configuration at path, with environment overrides,
// and installs it as the process-wide configuration. Once a configuration is
// installed later calls return nil without reading path. A failed load
// installs nothing, so Initialize may be retried.
func Initialize(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// GetConfig returns the installed configuration, or nil before a successful
// Initialize.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
