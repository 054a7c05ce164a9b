package config

import (
	"time"

	"mercator-hq/pacer/pkg/limits/dispatch"
	"mercator-hq/pacer/pkg/route"
)

// Default values for configuration fields.
const (
	// Transport defaults
	DefaultUserAgent    = "pacer"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxIdleConns = 100
	DefaultGlobalBurst  = 1

	// Limits defaults
	DefaultLimit = dispatch.DefaultLimit

	// Storage defaults
	DefaultStorageBackend    = "memory"
	DefaultSQLitePath        = "data/pacer.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultSnapshotSchedule  = "*/5 * * * *"
	DefaultRetention         = 30 * 24 * time.Hour

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsListen   = "127.0.0.1:9090"
	DefaultMetricsPath     = "/metrics"
	DefaultTracingEndpoint = "localhost:4317"
	DefaultTracingSampler  = "always"
	DefaultServiceName     = "pacer"
)

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Transport defaults
	if cfg.Transport.UserAgent == "" {
		cfg.Transport.UserAgent = DefaultUserAgent
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = DefaultTimeout
	}
	if cfg.Transport.MaxIdleConns == 0 {
		cfg.Transport.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Transport.GlobalBurst == 0 {
		cfg.Transport.GlobalBurst = DefaultGlobalBurst
	}

	// Limits defaults
	if cfg.Limits.DefaultLimit == 0 {
		cfg.Limits.DefaultLimit = DefaultLimit
	}
	if cfg.Limits.GatewayPath == "" {
		cfg.Limits.GatewayPath = route.GatewayPath
	}
	if len(cfg.Limits.MajorParameters) == 0 {
		cfg.Limits.MajorParameters = append([]string(nil), route.DefaultMajorParameters...)
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SnapshotSchedule == "" {
		cfg.Storage.SnapshotSchedule = DefaultSnapshotSchedule
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = DefaultRetention
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Listen == "" {
		cfg.Telemetry.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
