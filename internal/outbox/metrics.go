package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch results and DLQ replay outcomes used as metric label values.
const (
	resultDelivered    = "delivered"
	resultFailed       = "failed"
	resultDeadLettered = "dead_lettered"

	outcomeRequeued    = "requeued"
	outcomeQuarantined = "quarantined"
	outcomeRetry       = "retry_scheduled"
)

var (
	dispatchedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the dispatcher, labeled by topic and result.",
	}, []string{"topic", "result"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "daily_menu",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-lettered menu events handled by the replay manager, labeled by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "daily_menu",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead-lettered events still waiting for replay.",
	})
)

func init() {
	prometheus.MustRegister(dispatchedEvents, batchDuration, dlqEntries, dlqBacklog)
}

func recordDispatched(messages []Message, result string) {
	for _, msg := range messages {
		dispatchedEvents.WithLabelValues(msg.Topic, result).Inc()
	}
}

func recordReplay(entry dlqEntry, outcome string) {
	dlqEntries.WithLabelValues(entry.EventType, outcome).Inc()
}

// updateBacklogGauge refreshes the backlog gauge and returns the live count.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return 0, err
	}
	dlqBacklog.Set(float64(count))
	return count, nil
}
