package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"LatentTrader/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const (
	popTimeout    = time.Second
	retryInterval = 5 * time.Second
)

// RedisQueue is a list-backed job queue. Producers LPUSH, workers BRPOP.
// Failed messages wait in a sorted set keyed by retry time and end up in
// a dead-letter list once RetryLimit is spent.
type RedisQueue struct {
	log       *logger.Logger
	cfg       Config
	client    *redis.Client
	keyPrefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisQueue creates a queue on client. cfg may be nil.
func NewRedisQueue(lgr *logger.Logger, cfg *Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	c := Config{Workers: 1, RetryDelay: 10 * time.Second}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if lgr == nil {
		lgr = logger.Nop()
	}

	r := &RedisQueue{
		log:       lgr,
		cfg:       c,
		client:    client,
		keyPrefix: "latenttrader:queue",
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	initQueueMetricsOnce()
	return r
}

// Register adds job as the handler for job.Type().
func (r *RedisQueue) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start checks the connection and launches the workers and the retry loop.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()

	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: time.Now().UTC()}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), b).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	queueJobs.WithLabelValues(msgType, "enqueued").Inc()
	r.log.Debug("message enqueued",
		logger.String("id", msg.ID),
		logger.String("type", msgType))
	return msg.ID, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, popTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.log.Error("brpop error", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(popTimeout):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("unmarshal message", logger.Error(err))
			continue
		}
		r.process(msg)
	}
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	ctx, cancel := r.ctx, context.CancelFunc(func() {})
	if r.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	}
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	cancel()
	queueJobSeconds.WithLabelValues(msg.Type).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		queueJobs.WithLabelValues(msg.Type, "done").Inc()
	case r.ctx.Err() != nil:
		// shutting down: put it back so the next start picks it up
		r.requeue(msg)
	default:
		r.fail(msg, job, err)
	}
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.log.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.cfg.RetryLimit {
		queueJobs.WithLabelValues(msg.Type, "dead").Inc()
		r.push(r.deadLetterKey(), msg)
		return
	}
	msg.Attempts++
	at := time.Now().Add(r.cfg.RetryDelay)
	b, merr := json.Marshal(msg)
	if merr != nil {
		r.log.Error("marshal retry", logger.Error(merr))
		return
	}
	if zerr := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: b}).Err(); zerr != nil {
		r.log.Error("zadd retry", logger.Error(zerr))
		return
	}
	queueJobs.WithLabelValues(msg.Type, "retried").Inc()
	r.log.Info("job retry scheduled",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

func (r *RedisQueue) requeue(msg Message) {
	r.push(r.queueKey(), msg)
}

func (r *RedisQueue) push(key string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal message", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.LPush(ctx, key, b).Err(); err != nil {
		r.log.Error("lpush", logger.String("key", key), logger.Error(err))
	}
}

// retryLoop moves due retries back onto the main list.
func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue(time.Now())
		}
	}
}

func (r *RedisQueue) promoteDue(now time.Time) {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, m := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey(), m)
		pipe.LPush(r.ctx, r.queueKey(), m)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if r.ctx.Err() == nil {
				r.log.Error("move retry to queue", logger.Error(err))
			}
			return
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

var (
	queueMetricsOnce sync.Once
	queueJobs        *prometheus.CounterVec
	queueJobSeconds  *prometheus.HistogramVec
)

func initQueueMetricsOnce() {
	queueMetricsOnce.Do(func() {
		queueJobs = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "latenttrader_queue_jobs_total", Help: "Queue messages by type and outcome"},
			[]string{"type", "status"},
		)
		queueJobSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "latenttrader_queue_job_seconds", Help: "Job handling time", Buckets: prometheus.ExponentialBuckets(0.05, 2, 12)},
			[]string{"type"},
		)
	})
}
