package repository

import (
	"context"

	"LatentTrader/internal/domain/models"
)

// EventStream delivers live events in order on a single channel.
type EventStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Event, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// IntentPublisher accepts trade-intent notifications from the agent.
type IntentPublisher interface {
	PublishIntent(ctx context.Context, intent *models.TradeIntent) error
	Close() error
}

// ModelStore persists trained models between restarts.
type ModelStore interface {
	Save(ctx context.Context, m *models.TrainedModel) error
	Load(ctx context.Context, product string) (*models.TrainedModel, error)
	// Lock acquires a training lock for product; the returned func releases it.
	Lock(ctx context.Context, product string) (func(), bool, error)
}

type Metrics interface {
	RecordEvent(kind string)
	RecordError(kind string)
	RecordLastPrice(product string, price float64)
	RecordLatency(op string, seconds float64)
	RecordDecision(action string)
	RecordPosition(cash, asset, valuation float64)
	RecordIterations(policy string, n int)
}
