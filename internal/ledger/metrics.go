package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	casConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cas_conflicts_total",
			Help: "Version conflicts seen while committing",
		},
		[]string{"operation"},
	)

	reconciliationMarkers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_reconciliation_markers_total",
			Help: "Discrepancies queued for reconciliation",
		},
		[]string{"operation"},
	)

	recoveryActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_recovery_actions_total",
			Help: "Actions taken by the recovery sweep and the reconciler",
		},
		[]string{"action"},
	)

	publishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_event_publish_errors_total",
			Help: "Ledger events that could not be published",
		},
	)
)
