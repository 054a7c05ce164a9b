// Package tracing exports OpenTelemetry spans for scheduled calls.
//
// Sender wraps the scheduler so each call produces one client span from
// submission to reply. The "written" event marks when the request left
// the queue, which separates time spent waiting on a bucket from time
// spent on the wire. Reply rate limit headers are recorded as span
// attributes.
//
// Spans are exported with OTLP over gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// A disabled tracer is a noop and costs one function call per span.
package tracing
