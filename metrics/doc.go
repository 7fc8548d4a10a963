// Package metrics exports pool, cleanup scheduler and initializer counters as
// Prometheus metrics.
//
// The Collector pulls snapshots from its sources on every scrape, so no
// component has to know about Prometheus:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(
//		metrics.Pools("resourcekit", manager),
//		metrics.Scheduler("resourcekit", scheduler),
//		metrics.Initializer("resourcekit", inits),
//	))
package metrics
