package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_events_applied_total",
			Help: "Ledger events applied to the mirror",
		},
		[]string{"event_name"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_events_dropped_total",
			Help: "Ledger events dropped after exhausting retries",
		},
		[]string{"event_name"},
	)

	SyncLag = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_sync_lag_seconds",
			Help:    "Time between observing a ledger event and applying it to the mirror",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"event_name"},
	)

	SubscriptionReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_subscription_reconnects_total",
			Help: "Ledger subscriptions re-established after a failure",
		},
	)

	BackfillRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_backfill_runs_total",
			Help: "Backfill sweeps by result",
		},
		[]string{"result"},
	)

	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Ticket validations by outcome",
		},
		[]string{"outcome"},
	)

	ConfirmationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_confirmation_duration_seconds",
			Help:    "Time from submitting a validation transaction to its confirmation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)
