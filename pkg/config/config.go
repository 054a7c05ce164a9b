package config

import "time"

// Config is the root configuration structure for pacer.
type Config struct {
	// Transport configures the HTTP client that performs the calls.
	Transport TransportConfig `yaml:"transport"`

	// Limits configures route classification and bucket scheduling.
	Limits LimitsConfig `yaml:"limits"`

	// Storage configures persistence of discovered route buckets.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TransportConfig contains configuration for the HTTP sender.
type TransportConfig struct {
	// BaseURL is prepended to every request target.
	// Example: "https://discord.com/api/v10"
	BaseURL string `yaml:"base_url"`

	// Token is sent verbatim as the Authorization header.
	// Example: "Bot abc123"
	Token string `yaml:"token"`

	// UserAgent is sent with every request.
	// Default: "pacer"
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each request including the body read.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns caps pooled connections.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// GlobalRate limits requests per second across all routes.
	// Zero disables the global limiter.
	// Default: 0
	GlobalRate float64 `yaml:"global_rate"`

	// GlobalBurst is the burst size of the global limiter.
	// Default: 1
	GlobalBurst int `yaml:"global_burst"`
}

// LimitsConfig contains configuration for the dispatch scheduler.
type LimitsConfig struct {
	// DefaultLimit is the assumed size of buckets not yet discovered. It
	// caps how many uncategorized calls may be in flight.
	// Default: 5
	DefaultLimit int `yaml:"default_limit"`

	// GatewayPath is the route whose bucket never holds back
	// uncategorized calls.
	// Default: "/gateway/bot"
	GatewayPath string `yaml:"gateway_path"`

	// MajorParameters are path collections whose resource ID is part of
	// the route.
	// Default: ["channels", "guilds", "webhooks"]
	MajorParameters []string `yaml:"major_parameters"`
}

// StorageConfig contains configuration for assignment persistence.
type StorageConfig struct {
	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// SnapshotSchedule is a cron expression for saving assignments.
	// Empty saves only on shutdown.
	// Default: "*/5 * * * *"
	SnapshotSchedule string `yaml:"snapshot_schedule"`

	// Retention prunes stored routes not seen for this long.
	// Zero keeps everything.
	// Default: 720h
	Retention time.Duration `yaml:"retention"`
}

// SQLiteConfig contains SQLite backend configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/pacer.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics endpoint configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry export configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus endpoint configuration.
type MetricsConfig struct {
	// Enabled serves metrics while running.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Listen is the address of the metrics HTTP server.
	// Default: "127.0.0.1:9090"
	Listen string `yaml:"listen"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled exports one span per call.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of calls traced by the "ratio" sampler.
	// Default: 0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "pacer"
	ServiceName string `yaml:"service_name"`
}
