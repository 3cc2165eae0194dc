package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	Prefix       string
}

func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) { c.Host = host }
}

func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) { c.Port = port }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix namespaces every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// unlockScript deletes a lock only while it still holds our token, so a
// lock that expired and was taken by another process is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisCache is the shared Service used across engine instances.
type RedisCache struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string // lock key -> token we hold
}

// NewRedisCache connects and pings.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		Prefix:       "latenttrader",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisCache(client, cfg.Prefix), nil
}

func newRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, tokens: make(map[string]string)}
}

// Client exposes the connection for other Redis users such as the job queue.
func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, c.keys(keys)...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.keys(keys)...).Result()
	return n > 0, err
}

// TryLock takes key with SET NX and a random token.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

// Unlock releases a lock this instance holds. Unlocking a key it does not
// hold is a no-op.
func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return unlockScript.Run(ctx, c.client, []string{c.key(key)}, token).Err()
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}
