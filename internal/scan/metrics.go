package scan

import (
	"cellenics/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// scanMetrics holds Prometheus collectors for segment scans. A nil *scanMetrics is a no-op.
type scanMetrics struct {
	pages    *prometheus.CounterVec
	records  *prometheus.CounterVec
	failures *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*scanMetrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}
	m := &scanMetrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellenics",
			Subsystem: "scan",
			Name:      "pages_total",
			Help:      "Segment pages read from the table store",
		}, []string{"table"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellenics",
			Subsystem: "scan",
			Name:      "records_total",
			Help:      "Records yielded to scan consumers",
		}, []string{"table"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellenics",
			Subsystem: "scan",
			Name:      "failures_total",
			Help:      "Scans aborted by a failed page read",
		}, []string{"table"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellenics",
			Subsystem: "scan",
			Name:      "reads_in_flight",
			Help:      "Segment page reads currently outstanding",
		}),
	}
	var err error
	if m.pages, err = metrics.Register(reg, m.pages); err != nil {
		return nil, err
	}
	if m.records, err = metrics.Register(reg, m.records); err != nil {
		return nil, err
	}
	if m.failures, err = metrics.Register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.inFlight, err = metrics.Register(reg, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *scanMetrics) readStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *scanMetrics) readDone(table string, ok bool) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	if ok {
		m.pages.WithLabelValues(table).Inc()
	} else {
		m.failures.WithLabelValues(table).Inc()
	}
}

func (m *scanMetrics) yielded(table string) {
	if m != nil {
		m.records.WithLabelValues(table).Inc()
	}
}
