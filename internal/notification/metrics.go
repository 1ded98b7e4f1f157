package notification

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	MetricNotificationsCreated = "notifications_created_total"
	MetricNotificationFanouts  = "notification_fanouts_total"
)

// Fan-out results.
const (
	ResultDelivered    = "delivered"
	ResultNoRecipients = "no_recipients"
	ResultFailed       = "failed"
)

// Metrics contains Prometheus metrics for notification fan-out.
type Metrics struct {
	created prometheus.Counter
	fanouts *prometheus.CounterVec
}

// NewMetrics creates the notification collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNotificationsCreated,
			Help: "Total number of notifications created by fan-out",
		}),
		fanouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotificationFanouts,
				Help: "Total number of notification fan-outs by result",
			},
			[]string{"result"},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.created, m.fanouts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeFanout(created int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.fanouts.WithLabelValues(ResultFailed).Inc()
	case created == 0:
		m.fanouts.WithLabelValues(ResultNoRecipients).Inc()
	default:
		m.fanouts.WithLabelValues(ResultDelivered).Inc()
		m.created.Add(float64(created))
	}
}
