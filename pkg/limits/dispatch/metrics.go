package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the scheduler.
// A nil *Metrics records nothing.
type Metrics struct {
	submittedTotal  *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
	heldTotal       prometheus.Counter
	migrationsTotal prometheus.Counter
	resetsTotal     *prometheus.CounterVec
	headerErrors    prometheus.Counter

	queueWait *prometheus.HistogramVec

	queued   *prometheus.GaugeVec
	inFlight *prometheus.GaugeVec

	bucketLimit     *prometheus.GaugeVec
	bucketRemaining *prometheus.GaugeVec
}

// NewMetrics registers the scheduler metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		submittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_calls_submitted_total",
				Help: "Total number of calls submitted, by the scope they were queued in",
			},
			[]string{"scope"},
		),

		dispatchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_calls_dispatched_total",
				Help: "Total number of calls handed to the transport, by scope",
			},
			[]string{"scope"},
		),

		heldTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pacer_passes_held_total",
				Help: "Dispatch passes that held back uncategorized calls to protect a known bucket",
			},
		),

		migrationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pacer_route_migrations_total",
				Help: "Total number of routes moved to a newly reported bucket",
			},
		),

		resetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_bucket_resets_total",
				Help: "Total number of bucket window resets",
			},
			[]string{"bucket"},
		),

		headerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pacer_header_errors_total",
				Help: "Replies whose rate limit headers could not be parsed",
			},
		),

		queueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacer_queue_wait_seconds",
				Help:    "Time calls spent queued before dispatch",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"scope"},
		),

		queued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacer_queued_calls",
				Help: "Calls waiting for dispatch, by scope",
			},
			[]string{"scope"},
		),

		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacer_in_flight_calls",
				Help: "Calls written but not yet replied to, by scope",
			},
			[]string{"scope"},
		),

		bucketLimit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacer_bucket_limit",
				Help: "Calls allowed per window as last reported by the remote service",
			},
			[]string{"bucket"},
		),

		bucketRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacer_bucket_remaining",
				Help: "Calls left in the current window",
			},
			[]string{"bucket"},
		),
	}
}

func (m *Metrics) submitted(scope string) {
	if m == nil {
		return
	}
	m.submittedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) dispatched(scope string, wait time.Duration) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(scope).Inc()
	m.queueWait.WithLabelValues(scope).Observe(wait.Seconds())
}

func (m *Metrics) held() {
	if m == nil {
		return
	}
	m.heldTotal.Inc()
}

func (m *Metrics) migrated() {
	if m == nil {
		return
	}
	m.migrationsTotal.Inc()
}

func (m *Metrics) headerError() {
	if m == nil {
		return
	}
	m.headerErrors.Inc()
}

func (m *Metrics) bucket(b *bucket) {
	if m == nil {
		return
	}
	m.bucketLimit.WithLabelValues(b.ID).Set(float64(b.Limit))
	m.bucketRemaining.WithLabelValues(b.ID).Set(float64(b.Remaining))
}

func (m *Metrics) reset(b *bucket) {
	if m == nil {
		return
	}
	m.resetsTotal.WithLabelValues(b.ID).Inc()
	m.bucket(b)
}

func (m *Metrics) occupancy(scope string, queued, inFlight int) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(scope).Set(float64(queued))
	m.inFlight.WithLabelValues(scope).Set(float64(inFlight))
}
