// Package telemetry groups pacer's observability packages.
//
//   - logging: slog construction, runtime level changes, credential redaction
//   - metrics: Prometheus registry, HTTP transport metrics, endpoint server
//   - health: liveness and readiness probes served next to the metrics
package telemetry
