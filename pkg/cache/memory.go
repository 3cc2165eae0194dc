package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// defaultTTL applies when Set is called without an expiration.
const defaultTTL = 7 * 24 * time.Hour

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the number of entries; the least recently used
// entry is evicted to make room.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(mc *MemoryCache) {
		if size > 0 {
			mc.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(mc *MemoryCache) {
		if interval > 0 {
			mc.sweep = interval
		}
	}
}

type memEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is a process-local LRU Service. Values are stored encoded so
// Get behaves exactly like RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	sweep   time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: 1000,
		sweep:   5 * time.Minute,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mc)
	}
	go mc.sweepLoop()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, data, expiration)
	return nil
}

func (mc *MemoryCache) put(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	exp := mc.now().Add(ttl)
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*memEntry)
		e.value, e.expireAt = data, exp
		mc.order.MoveToFront(el)
		return
	}
	for mc.order.Len() >= mc.maxSize {
		mc.removeElement(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memEntry{key: key, value: data, expireAt: exp})
}

// live returns the entry for key, dropping it when expired.
func (mc *MemoryCache) live(key string) (*list.Element, bool) {
	el, ok := mc.items[key]
	if !ok {
		return nil, false
	}
	if mc.now().After(el.Value.(*memEntry).expireAt) {
		mc.removeElement(el)
		return nil, false
	}
	return el, true
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.live(key)
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	data := el.Value.(*memEntry).value
	mc.mu.Unlock()
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if _, ok := mc.live(k); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.live(key); ok {
		return false, nil
	}
	mc.put(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memEntry).key)
}

func (mc *MemoryCache) sweepLoop() {
	t := time.NewTicker(mc.sweep)
	defer t.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for el := mc.order.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*memEntry).expireAt) {
					mc.removeElement(el)
				}
				el = prev
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.done) })
	return nil
}
