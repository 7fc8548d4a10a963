package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/resourcekit/cleanup"
	"github.com/hupe1980/resourcekit/initializer"
	"github.com/hupe1980/resourcekit/pool"
)

// Source feeds one component into a Collector. Use Pools, Scheduler or
// Initializer to build one.
type Source interface {
	describe(ch chan<- *prometheus.Desc)
	collect(ch chan<- prometheus.Metric)
}

// Collector implements prometheus.Collector over a set of sources.
type Collector struct {
	sources []Source
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. Nil sources are ignored.
func NewCollector(sources ...Source) *Collector {
	c := &Collector{}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.sources {
		s.describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sources {
		s.collect(ch)
	}
}

// PoolMetrics is satisfied by *pool.Manager.
type PoolMetrics interface {
	Metrics() map[string]pool.Metrics
}

// SchedulerStats is satisfied by *cleanup.Scheduler.
type SchedulerStats interface {
	Stats() cleanup.Stats
}

// InitializerStats is satisfied by *initializer.Initializer.
type InitializerStats interface {
	Stats() initializer.Stats
}

func newDesc(namespace, subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}
