package config

import (
	"fmt"
	"sync"
)

// global is the process-wide configuration shared by the CLI commands.
var global struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// Initialize loads path with environment overrides and installs it as the
// global configuration. Once a load has succeeded later calls are no-ops;
// a failed load leaves nothing installed and may be retried.
func Initialize(path string) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.cfg != nil {
		return nil
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	global.cfg, global.path = cfg, path
	return nil
}

// GetConfig returns the global configuration, or nil before Initialize.
func GetConfig() *Config {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.cfg
}

// Path returns the file the global configuration was loaded from. It is
// empty when only defaults and the environment were used.
func Path() string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.path
}

// SetConfig replaces the global configuration. Intended for tests.
func SetConfig(cfg *Config) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.cfg = cfg
}

// ReloadConfig loads path and installs it only if loading and validation
// succeed. The previous configuration stays in place otherwise.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	global.mu.Lock()
	global.cfg, global.path = cfg, path
	global.mu.Unlock()
	return cfg, nil
}

// MustGetConfig returns the global configuration and panics if Initialize
// has not succeeded.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
