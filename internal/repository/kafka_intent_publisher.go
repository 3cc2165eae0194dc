package repository

import (
	"context"
	"fmt"

	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	applogger "LatentTrader/pkg/logger"
)

// MessageWriter is the slice of pkg/kafka.Producer the publisher needs.
type MessageWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaIntentPublisher sends trade intents keyed by product so that every
// intent for one product lands on one partition in order. It also serves
// as the log collector's sink.
type KafkaIntentPublisher struct {
	producer MessageWriter
	topic    string
}

func NewKafkaIntentPublisher(producer MessageWriter, topic string) *KafkaIntentPublisher {
	return &KafkaIntentPublisher{producer: producer, topic: topic}
}

func (p *KafkaIntentPublisher) PublishIntent(ctx context.Context, intent *models.TradeIntent) error {
	if intent == nil {
		return fmt.Errorf("intent nil")
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(intent.Product), intent); err != nil {
		return fmt.Errorf("publish intent %s: %w", intent.ID, err)
	}
	return nil
}

// PublishMessage implements logger.Publisher.
func (p *KafkaIntentPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaIntentPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ domrepo.IntentPublisher = (*KafkaIntentPublisher)(nil)
	_ applogger.Publisher     = (*KafkaIntentPublisher)(nil)
)
