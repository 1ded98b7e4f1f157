package cache

import "github.com/prometheus/client_golang/prometheus"

// MetricCacheRequests is the name of the cache lookup counter.
const MetricCacheRequests = "cache_requests_total"

// Metrics counts cache operations by cache name and result: hit, miss and
// error for lookups, store_error and stale for write-backs.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics creates the cache collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheRequests,
				Help: "Total number of cache lookups and write-backs by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// IncRequests counts one lookup.
func (m *Metrics) IncRequests(cache, result string) {
	m.requests.WithLabelValues(cache, result).Inc()
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.requests)
}
