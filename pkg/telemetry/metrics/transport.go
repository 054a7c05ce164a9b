package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransportMetrics tracks HTTP requests made on behalf of the scheduler.
//
// Metrics:
//   - pacer_http_requests_total: Requests by method and status code
//   - pacer_http_request_duration_seconds: Request latency by method
//   - pacer_http_rate_limited_total: Replies with status 429
type TransportMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

// NewTransportMetrics creates and registers transport metrics with the
// provided registerer.
func NewTransportMetrics(reg prometheus.Registerer) *TransportMetrics {
	tm := &TransportMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_http_requests_total",
				Help: "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacer_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pacer_http_rate_limited_total",
				Help: "Total number of replies with status 429",
			},
		),
	}

	reg.MustRegister(tm.requestsTotal, tm.requestDuration, tm.rateLimited)
	return tm
}

// ObserveRequest records one completed request. Failed requests are
// counted with code "error".
func (tm *TransportMetrics) ObserveRequest(method string, status int, elapsed time.Duration, err error) {
	code := "error"
	if err == nil {
		code = strconv.Itoa(status)
	}
	tm.requestsTotal.WithLabelValues(method, code).Inc()
	tm.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if err == nil && status == 429 {
		tm.rateLimited.Inc()
	}
}
