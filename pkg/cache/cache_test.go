package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", &sample{Name: "a", Values: []float64{1, 2}}, time.Minute))

	got, err := GetTyped[sample](ctx, mc, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []float64{1, 2}, got.Values)

	missing, err := GetTyped[sample](ctx, mc, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCacheExpiresAndEvicts(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "short", &v), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))
	assert.Equal(t, 2, mc.Len())
	ok, err := mc.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "least recently used key is evicted")
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheFillsL1(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", &sample{Name: "remote"}, time.Hour))
	var got sample
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "remote", got.Name)

	// a second read is served from L1 even after the remote copy is gone
	require.NoError(t, remote.Delete(ctx, "k"))
	got = sample{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "remote", got.Name)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestKeyAndCodec(t *testing.T) {
	assert.Equal(t, "model:BTC-USD", Key("model", "BTC-USD"))

	b, err := encode(map[string]int{"k": 2})
	require.NoError(t, err)
	var m map[string]int
	require.NoError(t, decode(b, &m))
	assert.Equal(t, 2, m["k"])

	var raw []byte
	require.NoError(t, decode([]byte("xyz"), &raw))
	assert.Equal(t, []byte("xyz"), raw)
}

func TestRedisCacheKeysAndForeignUnlock(t *testing.T) {
	rc := newRedisCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "lt")
	defer rc.Close()

	assert.Equal(t, "lt:model:BTC-USD", rc.key("model:BTC-USD"))
	assert.Equal(t, []string{"lt:a", "lt:b"}, rc.keys([]string{"a", "b"}))
	// a lock this instance never took is not released
	assert.NoError(t, rc.Unlock(context.Background(), "train_lock:BTC-USD"))
	assert.NoError(t, rc.Delete(context.Background()))
}
