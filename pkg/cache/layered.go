package cache

import (
	"context"
	"time"
)

type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize sets the L1 capacity.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(lc *LayeredCache) {
		if size > 0 {
			lc.l1Size = size
		}
	}
}

// WithLayeredMemoryTTL caps how long L1 keeps an entry.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.l1TTL = ttl
		}
	}
}

// LayeredCache puts a short-lived in-process L1 in front of a shared L2
// (Redis in production). Locks and existence checks always go to L2 since
// L1 is local to the process.
type LayeredCache struct {
	l1     *MemoryCache
	remote Service
	l1Size int
	l1TTL  time.Duration
}

func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{remote: remote, l1Size: 1000, l1TTL: time.Minute}
	for _, opt := range opts {
		opt(lc)
	}
	lc.l1 = NewMemoryCache(WithMemoryMaxSize(lc.l1Size))
	return lc
}

// Set writes through: L2 first, so L1 never holds a value L2 rejected.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, value, lc.ttl(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, dest, lc.l1TTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.remote.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.remote.Unlock(ctx, key)
}

// ttl keeps L1 entries from outliving the remote copy.
func (lc *LayeredCache) ttl(remote time.Duration) time.Duration {
	if remote > 0 && remote < lc.l1TTL {
		return remote
	}
	return lc.l1TTL
}

// Close closes L1, and L2 when it is closable.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	if c, ok := lc.remote.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var (
	_ Service = (*LayeredCache)(nil)
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
)
