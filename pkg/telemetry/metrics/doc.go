// Package metrics exposes pacer's Prometheus metrics.
//
// A Collector owns one registry. The scheduler and the limits manager
// register their series through Collector.Registerer, the HTTP sender
// reports through Collector.Transport, and Server exposes everything on
// the configured listen address:
//
//	collector := metrics.NewCollector(version)
//	sender, _ := httpsender.New(httpsender.Config{
//	    BaseURL:  url,
//	    Observer: collector.Transport(),
//	}, logger)
//	go metrics.NewServer(collector, "127.0.0.1:9090", "/metrics", logger).Serve(ctx)
package metrics
