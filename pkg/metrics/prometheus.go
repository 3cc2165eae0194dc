package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	position       *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	iterations     *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// New returns the recorder registered on the default Prometheus registry.
func New() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// NewWithRegistry registers a fresh set of collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latenttrader_events_total",
				Help: "Total number of feed events by kind",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latenttrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		decisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latenttrader_decisions_total",
				Help: "Decisions taken by the agent by action",
			},
			[]string{"action"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "latenttrader_last_price",
				Help: "Last match price for a product",
			},
			[]string{"product"},
		),
		position: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "latenttrader_position",
				Help: "Agent position by component (cash, asset, valuation)",
			},
			[]string{"component"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latenttrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		iterations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latenttrader_clustering_iterations",
				Help:    "Assign/update iterations per clustering run",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
			[]string{"policy"},
		),
	}
}

// RecordEvent counts one feed event.
func (r *Recorder) RecordEvent(kind string) {
	r.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last match price for a product.
func (r *Recorder) RecordLastPrice(product string, price float64) {
	r.lastPrice.WithLabelValues(product).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordDecision(action string) {
	r.decisionsTotal.WithLabelValues(action).Inc()
}

func (r *Recorder) RecordPosition(cash, asset, valuation float64) {
	r.position.WithLabelValues("cash").Set(cash)
	r.position.WithLabelValues("asset").Set(asset)
	r.position.WithLabelValues("valuation").Set(valuation)
}

func (r *Recorder) RecordIterations(policy string, n int) {
	r.iterations.WithLabelValues(policy).Observe(float64(n))
}
