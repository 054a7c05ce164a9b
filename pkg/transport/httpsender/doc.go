// Package httpsender implements transport.Sender over net/http.
//
// The write hook fires when the request has been flushed to the
// connection, observed through httptrace. Requests that fail before that
// point still fire it, followed by the read hook with Reply.Err set, so
// every Send produces exactly one write and one read notification.
//
// An optional global token bucket (golang.org/x/time/rate) smooths the
// overall request rate on top of the per-bucket scheduling done upstream.
package httpsender
