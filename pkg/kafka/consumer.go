package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"LatentTrader/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var errStopped = errors.New("consumer stopped")

// Consumer reads registered topics with explicit commits. Every partition
// is pinned to one worker lane, so messages of a partition are handled one
// at a time in offset order while different partitions run in parallel.
type Consumer struct {
	cfg       ConsumerConfig
	log       *logger.Logger
	hook      ConsumerHook
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	lanes     []chan kafka.Message

	ctx      context.Context
	cancel   context.CancelFunc
	fetchWg  sync.WaitGroup
	workWg   sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewConsumer creates a consumer. Handlers must be registered before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:         "latenttrader",
		AutoOffsetReset: "latest",
		WorkerCount:     1,
		BufferSize:      256,
		BackoffMin:      100 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		MinBytes:        1,
		MaxBytes:        10 << 20,
		Logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		hook:     HookFuncs{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			StartOffset: startOffset(cfg.AutoOffsetReset),
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	initMetrics()
	return c, nil
}

// WithConsumerHook sets the hook run around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a handler for its topic. The first handler
// registered for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per topic and launches the worker lanes.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if len(c.handlers) == 0 {
		return fmt.Errorf("no kafka handlers registered")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.lanes = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.workWg.Add(1)
		go c.work(c.lanes[i])
	}

	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWg.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop cancels fetching, lets every lane finish its current message and
// closes readers. Messages still queued are left uncommitted so they are
// redelivered on the next start.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			return
		}

		c.cancel()
		c.fetchWg.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.workWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.fetchWg.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Int("failures", failures), logger.Error(err))
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0
		if km.Topic == "" {
			km.Topic = topic
		}

		lane := c.lanes[laneFor(km.Partition, len(c.lanes))]
		select {
		case lane <- km:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(lane <-chan kafka.Message) {
	defer c.workWg.Done()
	for km := range lane {
		if c.ctx.Err() != nil {
			continue
		}
		c.process(km)
	}
}

// process runs the handler with retries, then commits on success or once
// the message is parked on the DLQ. Without a DLQ a failed message stays
// uncommitted.
func (c *Consumer) process(km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		consumerHandleLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	}()

	attempts, err := c.attempt(h, km)
	if errors.Is(err, errStopped) {
		return
	}

	result := "ok"
	if err != nil {
		c.hook.OnError(context.Background(), km.Topic, km, km.Value, err)
		c.log.Error("kafka message failed",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err))
		result = "failed"
		if c.parkDLQ(km) {
			result = "dead"
		}
	} else if attempts > 1 {
		result = "retried"
	}
	consumerMsgsTotal.WithLabelValues(km.Topic, result).Inc()

	if result == "failed" {
		return
	}
	if r := c.readers[km.Topic]; r != nil {
		_ = c.commit(r, km)
	}
}

func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (int, error) {
	var err error
	for n := 1; ; n++ {
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
		if berr != nil {
			return n, berr
		}
		err = callHandler(h, hctx, hdata)
		c.hook.AfterHandle(hctx, km.Topic, hmsg, hdata, err)
		if err == nil || n > c.cfg.RetryMax {
			return n, err
		}
		c.hook.OnError(hctx, km.Topic, hmsg, hdata, err)
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, n)) {
			return n, errStopped
		}
	}
}

func callHandler(h MessageHandler, ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) parkDLQ(km kafka.Message) bool {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "source_offset", Value: []byte(fmt.Sprint(km.Offset))}),
	})
	if err != nil {
		c.log.Error("dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(r messageReader, km kafka.Message) error {
	const attempts = 3
	var err error
	for n := 1; n <= attempts; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, n))
	}
	c.log.Warn("kafka commit failed",
		logger.String("topic", km.Topic),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
	return err
}

// sleep waits d or until the consumer stops. It reports whether the wait
// completed.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func laneFor(partition, lanes int) int {
	if lanes <= 1 || partition < 0 {
		return 0
	}
	return partition % lanes
}

func startOffset(reset string) int64 {
	if reset == "earliest" {
		return kafka.FirstOffset
	}
	return kafka.LastOffset
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min
	for i := 1; i < attempt && exp < max; i++ {
		exp *= 2
	}
	if exp > max {
		exp = max
	}
	return exp - time.Duration(rand.Int64N(int64(exp)/2+1))
}
