package main

import (
	"fmt"
	"os"
	"path/filepath"

	"mercator-hq/pacer/pkg/cli"
	"mercator-hq/pacer/pkg/config"
	"mercator-hq/pacer/pkg/limits/storage"
	"mercator-hq/pacer/pkg/telemetry/logging"
)

// loadConfig initializes the global configuration from --config and the
// environment.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", err)
	}
	return config.MustGetConfig(), nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		Redact:    true,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err)
	}
	return logger, nil
}

// openStorage opens the configured assignment backend.
func openStorage(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
		return storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:      cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "memory", "":
		return storage.NewMemoryBackend(), nil
	default:
		return nil, cli.NewConfigError("storage.backend", fmt.Errorf("unsupported backend %q", cfg.Backend))
	}
}
