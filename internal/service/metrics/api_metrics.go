package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "latenttrader",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of engine endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "latenttrader",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by engine endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Observe records the latency of one endpoint call and counts it as an
// error when err is non-nil.
func Observe(endpoint string, start time.Time, err error) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		APIErrors.WithLabelValues(endpoint).Inc()
	}
}
