package metrics

import "github.com/prometheus/client_golang/prometheus"

type schedulerSource struct {
	src SchedulerStats

	pending *prometheus.Desc
	active  *prometheus.Desc
	events  *prometheus.Desc
}

// Scheduler exports the counters of a cleanup scheduler.
func Scheduler(namespace string, src SchedulerStats) Source {
	return &schedulerSource{
		src:     src,
		pending: newDesc(namespace, "cleanup", "pending", "Cleanups waiting to run."),
		active:  newDesc(namespace, "cleanup", "active", "Cleanups running right now."),
		events:  newDesc(namespace, "cleanup", "events_total", "Cleanup scheduler events.", "event"),
	}
}

func (s *schedulerSource) describe(ch chan<- *prometheus.Desc) {
	ch <- s.pending
	ch <- s.active
	ch <- s.events
}

func (s *schedulerSource) collect(ch chan<- prometheus.Metric) {
	st := s.src.Stats()

	ch <- prometheus.MustNewConstMetric(s.pending, prometheus.GaugeValue, float64(st.Pending))
	ch <- prometheus.MustNewConstMetric(s.active, prometheus.GaugeValue, float64(st.Active))

	for event, n := range map[string]int64{
		"scheduled":   st.Scheduled,
		"rescheduled": st.Rescheduled,
		"executed":    st.Executed,
		"succeeded":   st.Succeeded,
		"failed":      st.Failed,
		"retried":     st.Retried,
		"dropped":     st.Dropped,
		"skipped":     st.Skipped,
		"cancelled":   st.Cancelled,
		"noop":        st.NoOp,
	} {
		ch <- prometheus.MustNewConstMetric(s.events, prometheus.CounterValue, float64(n), event)
	}
}
