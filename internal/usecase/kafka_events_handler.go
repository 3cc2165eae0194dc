package usecase

import (
	"context"
	"errors"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	mid "LatentTrader/internal/middleware"
	pkgkafka "LatentTrader/pkg/kafka"
	"LatentTrader/pkg/logger"
)

// KafkaEventsHandler consumes raw feed messages replayed through Kafka and
// feeds them to the event pipeline.
type KafkaEventsHandler struct {
	topic   string
	pipe    *mid.EventPipeline
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaEventsHandler(topic string, pipe *mid.EventPipeline, metrics domrepo.Metrics, log *logger.Logger) *KafkaEventsHandler {
	return &KafkaEventsHandler{topic: topic, pipe: pipe, metrics: metrics, log: log}
}

func (h *KafkaEventsHandler) Topic() string { return h.topic }

// Handle decodes one message. Malformed events are logged and dropped; a
// nil return commits them so they are not redelivered.
func (h *KafkaEventsHandler) Handle(ctx context.Context, b []byte) error {
	ev, err := models.DecodeEvent(b)
	if err != nil {
		var me *errs.MalformedEventError
		if errors.As(err, &me) {
			h.metrics.RecordError("malformed_event")
			h.log.Error("malformed event dropped",
				logger.String("reason", me.Reason),
				logger.Int("bytes", len(b)))
			return nil
		}
		return err
	}
	if !ev.Time.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ev.Time).Seconds())
	}
	return h.pipe.Process(ctx, ev)
}

var _ pkgkafka.MessageHandler = (*KafkaEventsHandler)(nil)
