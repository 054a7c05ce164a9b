package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the Prometheus registry of a pacer process. Components
// register their own metrics through Registerer; the collector adds
// runtime, build and transport metrics.
type Collector struct {
	registry  *prometheus.Registry
	transport *TransportMetrics
}

// NewCollector creates a collector backed by a fresh registry. Version is
// exported through pacer_build_info.
func NewCollector(version string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "pacer_build_info",
		Help:        "Build information of the running binary",
		ConstLabels: prometheus.Labels{"version": version},
	})
	buildInfo.Set(1)
	registry.MustRegister(buildInfo)

	return &Collector{
		registry:  registry,
		transport: NewTransportMetrics(registry),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registerer other components should use.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

// Transport returns the HTTP request metrics. It satisfies
// httpsender.Observer.
func (c *Collector) Transport() *TransportMetrics {
	return c.transport
}
