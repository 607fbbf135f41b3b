package restore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	restoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_restores_total",
			Help: "Restore runs by outcome (success, or the failure kind)",
		},
		[]string{"outcome"},
	)

	restoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_restore_duration_seconds",
			Help:    "Wall time of accepted restore runs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)
)
