package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. All buckets share the same
// refill rate and burst.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// New returns a keyed limiter. perSecond <= 0 disables limiting.
func New(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}
