package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosca_operations_total",
			Help: "Total number of engine operations by outcome",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rosca_operation_duration_seconds",
			Help:    "Duration of engine operations, including ledger and randomness calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	EligiblePots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rosca_rotation_eligible_pots",
			Help: "Number of pots whose rotation time gate is satisfied",
		},
	)

	WatcherScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosca_watcher_scans_total",
			Help: "Total number of rotation watcher scans",
		},
		[]string{"status"},
	)
)
