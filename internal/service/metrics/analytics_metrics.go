package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairpulse",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of analytics API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairpulse",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by analytics API endpoint and code",
		},
		[]string{"endpoint", "code"},
	)

	ADFRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairpulse",
			Subsystem: "api",
			Name:      "adf_runs_total",
			Help:      "Stationarity test requests by result (ok, rejected, rate_limited)",
		},
		[]string{"result"},
	)
)

// Register adds the API collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, ADFRuns)
	})
}
