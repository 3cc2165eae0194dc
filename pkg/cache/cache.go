package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value store behind model persistence. TryLock and
// Unlock give a best-effort mutex that expires after ttl.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// GetTyped reads key into a new T. A miss returns (nil, nil).
func GetTyped[T any](ctx context.Context, c Service, key string) (*T, error) {
	var v T
	err := c.Get(ctx, key, &v)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
