package replicate

import (
	"cellenics/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// runMetrics holds Prometheus collectors for replication runs. A nil *runMetrics is a no-op.
type runMetrics struct {
	outcomes *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

func newRunMetrics(reg prometheus.Registerer) (*runMetrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}
	m := &runMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellenics",
			Subsystem: "replicate",
			Name:      "items_total",
			Help:      "Attempted copies by kind and outcome",
		}, []string{"kind", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellenics",
			Subsystem: "replicate",
			Name:      "runs_total",
			Help:      "Replication runs by result (ok, partial, refused)",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cellenics",
			Subsystem: "replicate",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of replication runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	var err error
	if m.outcomes, err = metrics.Register(reg, m.outcomes); err != nil {
		return nil, err
	}
	if m.runs, err = metrics.Register(reg, m.runs); err != nil {
		return nil, err
	}
	if m.duration, err = metrics.Register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *runMetrics) refused() {
	if m != nil {
		m.runs.WithLabelValues("refused").Inc()
	}
}

func (m *runMetrics) observe(s *Summary, seconds float64) {
	if m == nil {
		return
	}
	for _, r := range s.Records {
		m.outcomes.WithLabelValues(string(r.Kind), string(r.Outcome)).Inc()
	}
	result := "ok"
	if s.Counts().Failed > 0 {
		result = "partial"
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
}
