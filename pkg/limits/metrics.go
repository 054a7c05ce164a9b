package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for assignment persistence.
// Scheduler metrics live in dispatch.Metrics.
type Metrics struct {
	snapshotsTotal *prometheus.CounterVec
	snapshotRoutes prometheus.Gauge
	restoredRoutes prometheus.Gauge
}

// NewMetrics registers the persistence metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		snapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacer_snapshots_total",
				Help: "Total number of assignment snapshots, by result",
			},
			[]string{"result"},
		),

		snapshotRoutes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacer_snapshot_routes",
				Help: "Routes written by the last successful snapshot",
			},
		),

		restoredRoutes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacer_restored_routes",
				Help: "Routes restored from storage at startup",
			},
		),
	}
}

func (m *Metrics) snapshot(routes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.snapshotsTotal.WithLabelValues("error").Inc()
		return
	}
	m.snapshotsTotal.WithLabelValues("success").Inc()
	m.snapshotRoutes.Set(float64(routes))
}

func (m *Metrics) restored(routes int) {
	if m == nil {
		return
	}
	m.restoredRoutes.Set(float64(routes))
}
