package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClusterOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistagram_cluster_outcomes_total",
			Help: "Clustering decisions by outcome (none, created, attached, merged)",
		},
		[]string{"outcome"},
	)

	ClusterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vistagram_cluster_duration_seconds",
			Help:    "Time spent clustering a single post, lock wait included",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClusterConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vistagram_cluster_conflicts_total",
			Help: "Optimistic album writes that lost a race and were retried",
		},
	)

	ClusterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistagram_cluster_errors_total",
			Help: "Clustering invocations that were aborted, by stage",
		},
		[]string{"stage"},
	)

	ClusterLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vistagram_cluster_lock_wait_seconds",
			Help:    "Time spent waiting for the neighbourhood lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func RecordOutcome(outcome string, started time.Time) {
	ClusterOutcomes.WithLabelValues(outcome).Inc()
	ClusterDuration.Observe(time.Since(started).Seconds())
}

func RecordError(stage string) {
	ClusterErrors.WithLabelValues(stage).Inc()
}
