package engagement

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	MetricEngagementUpserts   = "engagement_upserts_total"
	MetricEngagementConflicts = "engagement_upsert_conflicts_total"
)

// Upsert results.
const (
	ResultInserted = "inserted"
	ResultUpdated  = "updated"
	ResultFailed   = "failed"
)

// Metrics contains Prometheus metrics for engagement writes.
type Metrics struct {
	upserts   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

// NewMetrics creates the engagement collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEngagementUpserts,
				Help: "Total number of engagement upserts by kind and result",
			},
			[]string{"kind", "result"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEngagementConflicts,
				Help: "Total number of concurrent first-write conflicts retried as updates",
			},
			[]string{"kind"},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.upserts, m.conflicts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncUpserts counts one upsert outcome.
func (m *Metrics) IncUpserts(kind Kind, result string) {
	m.upserts.WithLabelValues(string(kind), result).Inc()
}

// IncConflicts counts one retried conflict.
func (m *Metrics) IncConflicts(kind Kind) {
	m.conflicts.WithLabelValues(string(kind)).Inc()
}
