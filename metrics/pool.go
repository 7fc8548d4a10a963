package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/resourcekit/pool"
)

type poolSource struct {
	src PoolMetrics

	resources   *prometheus.Desc
	bounds      *prometheus.Desc
	peakInUse   *prometheus.Desc
	utilization *prometheus.Desc
	avgWait     *prometheus.Desc
	inUseTime   *prometheus.Desc
	events      *prometheus.Desc
}

// Pools exports every pool registered with src, labelled by pool id and resource type.
func Pools(namespace string, src PoolMetrics) Source {
	labels := []string{"pool", "resource_type"}
	return &poolSource{
		src:         src,
		resources:   newDesc(namespace, "pool", "resources", "Resources held by the pool by state.", append(labels, "state")...),
		bounds:      newDesc(namespace, "pool", "size_bound", "Configured pool size bounds.", append(labels, "bound")...),
		peakInUse:   newDesc(namespace, "pool", "peak_in_use", "Highest number of resources checked out at once.", labels...),
		utilization: newDesc(namespace, "pool", "utilization_ratio", "Checked out resources divided by total resources.", labels...),
		avgWait:     newDesc(namespace, "pool", "acquire_wait_average_seconds", "Average time spent waiting in Acquire.", labels...),
		inUseTime:   newDesc(namespace, "pool", "in_use_seconds_total", "Accumulated time resources spent checked out.", labels...),
		events:      newDesc(namespace, "pool", "events_total", "Pool lifecycle events.", append(labels, "event")...),
	}
}

func (s *poolSource) describe(ch chan<- *prometheus.Desc) {
	ch <- s.resources
	ch <- s.bounds
	ch <- s.peakInUse
	ch <- s.utilization
	ch <- s.avgWait
	ch <- s.inUseTime
	ch <- s.events
}

func (s *poolSource) collect(ch chan<- prometheus.Metric) {
	for _, m := range s.src.Metrics() {
		s.collectPool(ch, m)
	}
}

func (s *poolSource) collectPool(ch chan<- prometheus.Metric, m pool.Metrics) {
	id, rt := m.PoolID, m.ResourceType

	for state, n := range map[string]int{
		"available": m.Available,
		"in_use":    m.InUse,
		"creating":  m.Creating,
	} {
		ch <- prometheus.MustNewConstMetric(s.resources, prometheus.GaugeValue, float64(n), id, rt, state)
	}

	ch <- prometheus.MustNewConstMetric(s.bounds, prometheus.GaugeValue, float64(m.MinSize), id, rt, "min")
	ch <- prometheus.MustNewConstMetric(s.bounds, prometheus.GaugeValue, float64(m.MaxSize), id, rt, "max")
	ch <- prometheus.MustNewConstMetric(s.peakInUse, prometheus.GaugeValue, float64(m.PeakInUse), id, rt)
	ch <- prometheus.MustNewConstMetric(s.utilization, prometheus.GaugeValue, m.Utilization, id, rt)
	ch <- prometheus.MustNewConstMetric(s.avgWait, prometheus.GaugeValue, m.AverageWait.Seconds(), id, rt)
	ch <- prometheus.MustNewConstMetric(s.inUseTime, prometheus.CounterValue, m.TotalInUse.Seconds(), id, rt)

	for event, n := range map[string]int64{
		"acquired":         m.Acquisitions,
		"hit":              m.Hits,
		"released":         m.Releases,
		"timeout":          m.Timeouts,
		"created":          m.Created,
		"destroyed":        m.Destroyed,
		"creation_failure": m.CreationFailures,
		"cleanup_failure":  m.CleanupFailures,
		"error":            m.Errors,
		"scale_up":         m.ScaleUps,
		"scale_down":       m.ScaleDowns,
	} {
		ch <- prometheus.MustNewConstMetric(s.events, prometheus.CounterValue, float64(n), id, rt, event)
	}
}
