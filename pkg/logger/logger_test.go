package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	reports []*AnomalyReport
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.reports = append(p.reports, payload.(*AnomalyReport))
	return nil
}

func (p *capturePublisher) all() []*AnomalyReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*AnomalyReport(nil), p.reports...)
}

func TestComponentLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&Config{Level: "info", Components: map[string]string{"agent": "debug"}}, &buf)
	require.NoError(t, err)

	l.With("queue").Debug("hidden")
	l.With("agent").Debug("shown", String("product", "BTC-USD"), Duration("took", 1500*time.Millisecond))
	l.Info("root", Error(nil), Strings("topics", []string{"a", "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "shown", first["message"])
	assert.Equal(t, "agent", first["component"])
	assert.Equal(t, "BTC-USD", first["product"])
	assert.EqualValues(t, 1500, first["took"])
	assert.NotContains(t, lines[1], `"error"`)

	assert.False(t, l.With("queue").DebugEnabled())
	assert.True(t, l.With("agent").DebugEnabled())

	_, err = newLogger(&Config{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = newLogger(&Config{Level: "info", Components: map[string]string{"x": "loud"}}, &buf)
	assert.Error(t, err)
}

func TestCollectorAggregatesChildLogs(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&Config{Level: "info"}, &buf)
	require.NoError(t, err)
	child := l.With("kafka")

	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "anomalies", Publisher: pub})

	for i := 0; i < 3; i++ {
		child.Warn("malformed event dropped", Int("bytes", i))
	}
	child.Error("dlq write failed", Error(errors.New("broker down")))
	child.Info("not collected")
	l.RemoveCollector()

	reports := pub.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "anomalies", pub.topic)
	r := reports[0]
	require.Len(t, r.Entries, 2)
	assert.Equal(t, "malformed event dropped", r.Entries[0].Message)
	assert.Equal(t, 3, r.Entries[0].Count)
	assert.Equal(t, "warn", r.Entries[0].Level)
	assert.Equal(t, 2, r.Entries[0].Fields["bytes"])
	assert.Contains(t, r.Entries[0].Caller, "logger_test.go:")
	assert.Equal(t, "broker down", r.Entries[1].Fields["error"])

	child.Error("after removal")
	assert.Len(t, pub.all(), 1)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "a", nil, "x.go:1")
	assert.Empty(t, pub.all())
	c.AddLog("error", "b", nil, "x.go:2")

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, pub.all()[0].Entries, 2)
}
