package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	producerMsgsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatencyHist *prometheus.HistogramVec

	consumerMsgsTotal     *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		producerMsgsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "latenttrader_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "result"},
		)
		producerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "latenttrader_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic", "compression"},
		)
		producerLatencyHist = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "latenttrader_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerMsgsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "latenttrader_kafka_consumer_messages_total", Help: "Messages consumed by outcome (ok, retried, dead, dropped)"},
			[]string{"topic", "result"},
		)
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "latenttrader_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "latenttrader_kafka_consumer_handle_seconds", Help: "Handling time per message, retries included"},
			[]string{"topic"},
		)
	})
}

func observePublish(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, result).Add(float64(count))
	if err == nil {
		producerBytesTotal.WithLabelValues(topic, comp).Add(float64(bytes))
	}
	producerLatencyHist.WithLabelValues(topic).Observe(dur.Seconds())
}
