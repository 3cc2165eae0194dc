package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"slices"
	"sync"
	"time"
)

// Publisher ships a collector report, e.g. to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry counts repeats of one warn or error line. Lines are
// the same when level, message and caller match; Fields are those of the
// most recent occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// AnomalyReport is one flush, most frequent entries first.
type AnomalyReport struct {
	Host    string               `json:"host"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// LogCollector folds repeated warnings and errors into counted entries and
// publishes them periodically, so a burst of identical failures becomes a
// single message.
type LogCollector struct {
	cfg     CollectionConfig
	host    string
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	since   time.Time
	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		since:   time.Now(),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	c.host, _ = os.Hostname()
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, caller)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &AggregatedLogEntry{Level: level, Message: message, Caller: caller, FirstSeen: now}
		c.entries[key] = e
	}
	e.Count++
	e.LastSeen = now
	e.Fields = fields
	full := len(c.entries) >= c.cfg.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

func entryKey(level, message, caller string) uint64 {
	h := fnv.New64a()
	for _, s := range []string{level, message, caller} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (c *LogCollector) loop() {
	defer close(c.done)
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush()
		case <-c.flushCh:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

// take swaps out the pending entries.
func (c *LogCollector) take() *AnomalyReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	now := time.Now()
	r := &AnomalyReport{Host: c.host, From: c.since, To: now, Entries: make([]AggregatedLogEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		r.Entries = append(r.Entries, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.since = now
	slices.SortFunc(r.Entries, func(a, b AggregatedLogEntry) int { return b.Count - a.Count })
	return r
}

func (c *LogCollector) flush() {
	r := c.take()
	if r == nil || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, r); err != nil {
		// Logging here would feed the collector itself.
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(r.Entries), err)
	}
}

// Close publishes what is pending and stops the collector.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.done
}
