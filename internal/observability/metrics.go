package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	suggestionsServedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "suggest",
		Name:      "activities_served_total",
		Help:      "Number of activities returned by the suggestion selector.",
	})

	poolExhaustedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "suggest",
		Name:      "pool_exhausted_total",
		Help:      "Number of selections that reset the session-seen set because the filtered pool was empty.",
	})

	dismissalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "suggest",
		Name:      "dismissals_total",
		Help:      "Number of activities dismissed by users.",
	})

	mergeOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daily_menu",
		Subsystem: "sync",
		Name:      "merge_records_total",
		Help:      "Records reconciled by the sync merge resolver, labeled by record kind and outcome.",
	}, []string{"kind", "outcome"})

	lastMergeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "daily_menu",
		Subsystem: "sync",
		Name:      "last_merge_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful merge per record kind.",
	}, []string{"kind"})

	changesPersistedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "daily_menu",
		Subsystem: "persistence",
		Name:      "last_change_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent change set committed to the record store.",
	})
)

func init() {
	prometheus.MustRegister(
		suggestionsServedCounter,
		poolExhaustedCounter,
		dismissalCounter,
		mergeOutcomeCounter,
		lastMergeGauge,
		changesPersistedGauge,
	)
}

// RecordSuggestionsServed counts activities handed to a user.
func RecordSuggestionsServed(n int) {
	if n <= 0 {
		return
	}
	suggestionsServedCounter.Add(float64(n))
}

// RecordPoolExhausted counts a session reset caused by an empty pool.
func RecordPoolExhausted() {
	poolExhaustedCounter.Inc()
}

// RecordDismissal counts a dismissal.
func RecordDismissal() {
	dismissalCounter.Inc()
}

// RecordMerge adds one merge pass to the outcome counters and the watermark.
func RecordMerge(kind string, created, updated, conflicts int, ts time.Time) {
	mergeOutcomeCounter.WithLabelValues(kind, "created").Add(float64(created))
	mergeOutcomeCounter.WithLabelValues(kind, "updated").Add(float64(updated))
	mergeOutcomeCounter.WithLabelValues(kind, "conflict").Add(float64(conflicts))
	if !ts.IsZero() {
		lastMergeGauge.WithLabelValues(kind).Set(float64(ts.Unix()))
	}
}

// MergeOutcomes returns the collector for tests that assert on deltas.
func MergeOutcomes() *prometheus.CounterVec {
	return mergeOutcomeCounter
}

// RecordChangesPersisted updates the persistence watermark gauge.
func RecordChangesPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	changesPersistedGauge.Set(float64(ts.Unix()))
}
