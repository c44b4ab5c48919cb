package transaction

import "github.com/prometheus/client_golang/prometheus"

var (
	transactionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinytable",
			Subsystem: "transaction",
			Name:      "boundary_total",
			Help:      "Counter of transaction begin and end calls.",
		}, []string{"type"})

	conflictCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinytable",
			Subsystem: "transaction",
			Name:      "overlap_total",
			Help:      "Counter of overlapping operations found before commit.",
		}, []string{"result"})

	conflictCheckHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinytable",
			Subsystem: "transaction",
			Name:      "conflict_check_duration_seconds",
			Help:      "Bucketed histogram of time (s) spent checking write conflicts.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		})
)

func init() {
	prometheus.MustRegister(transactionCounter)
	prometheus.MustRegister(conflictCounter)
	prometheus.MustRegister(conflictCheckHistogram)
}
