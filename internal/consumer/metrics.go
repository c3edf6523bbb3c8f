package consumer

import "github.com/prometheus/client_golang/prometheus"

// Record results used as the "result" label.
const (
	resultApplied      = "applied"
	resultHandlerError = "handler_error"
	resultUndecodable  = "undecodable"
)

var (
	syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "consumer",
		Name:      "sync_records_total",
		Help:      "Sync batch records read from Kafka, labeled by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	auditFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "consumer",
		Name:      "audit_failures_total",
		Help:      "Applied sync batches whose sync_batch_log row could not be written.",
	}, []string{"event_type"})

	lastApplied = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "daily_menu",
		Subsystem: "consumer",
		Name:      "last_applied_timestamp_seconds",
		Help:      "Kafka timestamp of the newest sync batch applied per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(syncRecords, auditFailures, lastApplied)
}

func recordResult(msg Message, result string) {
	syncRecords.WithLabelValues(msg.Topic, msg.EventType, result).Inc()
	if result == resultApplied && !msg.Timestamp.IsZero() {
		lastApplied.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}
