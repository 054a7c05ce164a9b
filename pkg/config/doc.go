// Package config provides configuration management for pacer.
//
// Configuration is loaded from a YAML file, completed with defaults,
// overridden from the environment and validated.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("pacer.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("pacer.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PACER_SECTION_FIELD:
//
//   - PACER_TRANSPORT_BASE_URL overrides transport.base_url
//   - PACER_TRANSPORT_TOKEN overrides transport.token
//   - PACER_LIMITS_MAJOR_PARAMETERS overrides limits.major_parameters (comma separated)
//   - PACER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A variable that is set but malformed fails loading.
//
// # Hot Reload
//
// Watcher reloads the file on change and passes each valid configuration
// to a callback. Only settings that are safe to change at runtime, such as
// the log level, are applied by the caller.
//
// # Example Configuration
//
//	transport:
//	  base_url: "https://discord.com/api/v10"
//	  token: "Bot ${TOKEN}"
//	  timeout: 30s
//
//	limits:
//	  default_limit: 5
//
//	storage:
//	  backend: sqlite
//	  sqlite:
//	    path: data/pacer.db
//	  snapshot_schedule: "*/5 * * * *"
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    listen: 127.0.0.1:9090
package config
