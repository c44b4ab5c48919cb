package lock

import "github.com/prometheus/client_golang/prometheus"

var lockWaitHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tinytable",
		Subsystem: "lock",
		Name:      "wait_duration_seconds",
		Help:      "Bucketed histogram of time (s) spent waiting for the table lock.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
	}, []string{"provider", "result"})

func init() {
	prometheus.MustRegister(lockWaitHistogram)
}
