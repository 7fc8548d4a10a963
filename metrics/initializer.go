package metrics

import "github.com/prometheus/client_golang/prometheus"

type initializerSource struct {
	src InitializerStats

	resources *prometheus.Desc
	attempts  *prometheus.Desc
	failures  *prometheus.Desc
}

// Initializer exports the state of a background initializer.
func Initializer(namespace string, src InitializerStats) Source {
	return &initializerSource{
		src:       src,
		resources: newDesc(namespace, "init", "resources", "Registered initializations by state.", "state"),
		attempts:  newDesc(namespace, "init", "attempts_total", "Initialization function invocations."),
		failures:  newDesc(namespace, "init", "failures_total", "Failed initialization attempts."),
	}
}

func (s *initializerSource) describe(ch chan<- *prometheus.Desc) {
	ch <- s.resources
	ch <- s.attempts
	ch <- s.failures
}

func (s *initializerSource) collect(ch chan<- prometheus.Metric) {
	st := s.src.Stats()

	for state, n := range map[string]int{
		"pending":      st.Pending,
		"initializing": st.Initializing,
		"initialized":  st.Initialized,
		"retrying":     st.Retrying,
		"failed":       st.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(s.resources, prometheus.GaugeValue, float64(n), state)
	}

	ch <- prometheus.MustNewConstMetric(s.attempts, prometheus.CounterValue, float64(st.Attempts))
	ch <- prometheus.MustNewConstMetric(s.failures, prometheus.CounterValue, float64(st.Failures))
}
