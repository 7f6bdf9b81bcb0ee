// Package metrics provides Prometheus metrics for the Trellis service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationRunsTotal tracks reconciliation runs by status
	ReconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status",
		},
		[]string{"tenant_id", "status"},
	)

	// ReconciliationDuration tracks end-to-end reconciliation duration
	ReconciliationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tenant_id"},
	)

	// MatchesByStrategy tracks matches produced per strategy tier
	MatchesByStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of match results by strategy tier",
		},
		[]string{"strategy"},
	)

	// InventoryFetchesTotal tracks outbound inventory fetches
	InventoryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "inventory",
			Name:      "fetches_total",
			Help:      "Total number of external inventory fetches by outcome",
		},
		[]string{"outcome"},
	)

	// InventoryFetchDuration tracks inventory fetch duration
	InventoryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "inventory",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of external inventory fetches in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// LockTimeoutsTotal tracks strain lock acquisition timeouts
	LockTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "lineage",
			Name:      "lock_timeouts_total",
			Help:      "Total number of strain lock acquisition timeouts",
		},
		[]string{"operation"},
	)

	// LineageChangesTotal tracks audited lineage changes
	LineageChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "lineage",
			Name:      "changes_total",
			Help:      "Total number of sovereign and override lineage changes",
		},
		[]string{"scope"},
	)

	// SessionCacheEntries tracks live session cache entries
	SessionCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trellis",
			Subsystem: "sessioncache",
			Name:      "entries",
			Help:      "Number of live reconciliation result entries in the session cache",
		},
	)
)
