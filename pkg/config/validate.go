package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/pacer/pkg/telemetry/tracing"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "transport.base_url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found in a configuration.
type ValidationError struct {
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

// Validate checks the whole configuration and returns a ValidationError
// listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateTransport(&cfg.Transport)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateTransport(cfg *TransportConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "transport.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "transport.base_url",
			Message: fmt.Sprintf("invalid base URL %q: must be an absolute http(s) URL", cfg.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, FieldError{
			Field:   "transport.base_url",
			Message: fmt.Sprintf("unsupported scheme %q: must be 'http' or 'https'", u.Scheme),
		})
	}

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "transport.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{
			Field:   "transport.max_idle_conns",
			Message: "max idle connections must be non-negative",
		})
	}
	if cfg.GlobalRate < 0 {
		errs = append(errs, FieldError{
			Field:   "transport.global_rate",
			Message: "global rate must be non-negative",
		})
	}
	if cfg.GlobalBurst < 0 {
		errs = append(errs, FieldError{
			Field:   "transport.global_burst",
			Message: "global burst must be non-negative",
		})
	}

	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultLimit < 1 {
		errs = append(errs, FieldError{
			Field:   "limits.default_limit",
			Message: "default limit must be at least 1",
		})
	}
	if !strings.HasPrefix(cfg.GatewayPath, "/") {
		errs = append(errs, FieldError{
			Field:   "limits.gateway_path",
			Message: fmt.Sprintf("gateway path %q must start with '/'", cfg.GatewayPath),
		})
	}
	for i, p := range cfg.MajorParameters {
		if p == "" || strings.Contains(p, "/") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("limits.major_parameters[%d]", i),
				Message: fmt.Sprintf("invalid collection name %q", p),
			})
		}
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.SnapshotSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SnapshotSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "storage.snapshot_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.SnapshotSchedule, err),
			})
		}
	}
	if cfg.Retention < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.retention",
			Message: "retention must be non-negative",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen",
				Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.Listen, err),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with '/'",
			})
		}
	}

	if err := tracing.ValidateSampler(cfg.Tracing.Sampler, cfg.Tracing.SampleRatio); err != nil {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: err.Error(),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	return errs
}
