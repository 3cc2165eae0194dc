package repository

import (
	"context"
	"fmt"
	"time"

	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	"LatentTrader/pkg/cache"
	applogger "LatentTrader/pkg/logger"
)

const (
	modelKeyPrefix = "model"
	lockKeyPrefix  = "train_lock"
)

// ModelCache persists trained models in the shared cache and serialises
// training runs per product through a cache lock.
type ModelCache struct {
	c       cache.Service
	ttl     time.Duration
	lockTTL time.Duration
	l       *applogger.Logger
}

// NewModelCache creates a model store. A zero ttl keeps models for the
// cache's default lifetime.
func NewModelCache(c cache.Service, ttl, lockTTL time.Duration, l *applogger.Logger) *ModelCache {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ModelCache{c: c, ttl: ttl, lockTTL: lockTTL, l: l}
}

func (m *ModelCache) Save(ctx context.Context, tm *models.TrainedModel) error {
	if tm == nil || tm.Product == "" {
		return fmt.Errorf("model without product")
	}
	if err := m.c.Set(ctx, cache.Key(modelKeyPrefix, tm.Product), tm, m.ttl); err != nil {
		return fmt.Errorf("cache set model: %w", err)
	}
	return nil
}

// Load returns (nil, nil) when no model is stored for product.
func (m *ModelCache) Load(ctx context.Context, product string) (*models.TrainedModel, error) {
	tm, err := cache.GetTyped[models.TrainedModel](ctx, m.c, cache.Key(modelKeyPrefix, product))
	if err != nil {
		return nil, fmt.Errorf("cache get model: %w", err)
	}
	return tm, nil
}

func (m *ModelCache) Lock(ctx context.Context, product string) (func(), bool, error) {
	key := cache.Key(lockKeyPrefix, product)
	ok, err := m.c.TryLock(ctx, key, m.lockTTL)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	unlock := func() {
		// the caller's context may already be done
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.c.Unlock(uctx, key); err != nil {
			m.l.Warn("training unlock failed", applogger.String("product", product), applogger.Error(err))
		}
	}
	return unlock, true, nil
}

var _ domrepo.ModelStore = (*ModelCache)(nil)
