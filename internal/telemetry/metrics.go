package telemetry

import "github.com/prometheus/client_golang/prometheus"

// MetricMessagesTotal counts MQTT messages by topic kind and outcome.
const MetricMessagesTotal = "mqtt_messages_total"

// Message outcomes.
const (
	StatusProcessed = "processed"
	StatusInvalid   = "invalid"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Metrics contains Prometheus metrics for telemetry ingestion.
type Metrics struct {
	messages *prometheus.CounterVec
}

// NewMetrics creates the telemetry collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMessagesTotal,
				Help: "Total number of MQTT messages received by topic kind and status",
			},
			[]string{"topic_kind", "status"},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.messages)
}

// IncMessages counts one handled message.
func (m *Metrics) IncMessages(kind TopicKind, status string) {
	m.messages.WithLabelValues(string(kind), status).Inc()
}
