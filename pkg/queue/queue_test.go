package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Product string `json:"product"`
	Size    int    `json:"size"`
}

func TestParsePayload(t *testing.T) {
	want := params{Product: "BTC-USD", Size: 3}

	got, err := ParsePayload[params](json.RawMessage(`{"product":"BTC-USD","size":3}`))
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[params](map[string]interface{}{"product": "BTC-USD", "size": 3})
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[params](want)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = ParsePayload[params](42)
	assert.Error(t, err)
	_, err = ParsePayload[params]([]byte(`{"size":"x"}`))
	assert.Error(t, err)
}

type recordingJob struct {
	calls       int
	payload     json.RawMessage
	hadDeadline bool
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "test.record" }
func (j *recordingJob) Handle(ctx context.Context, payload interface{}) error {
	j.calls++
	j.payload, _ = payload.(json.RawMessage)
	_, j.hadDeadline = ctx.Deadline()
	return nil
}

func newTestQueue(t *testing.T, cfg *Config) *RedisQueue {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(nil, cfg, client, WithKeyPrefix("test:queue"))
	q.ctx, q.cancel = context.WithCancel(context.Background())
	t.Cleanup(q.cancel)
	return q
}

func TestProcessDispatchesByType(t *testing.T) {
	q := newTestQueue(t, &Config{JobTimeout: time.Minute})
	job := &recordingJob{}
	q.Register(job)
	q.Register(job)

	q.process(Message{ID: "1", Type: "test.record", Payload: json.RawMessage(`{"size":1}`)})
	q.process(Message{ID: "2", Type: "test.unknown"})

	assert.Equal(t, 1, job.calls)
	assert.JSONEq(t, `{"size":1}`, string(job.payload))
	assert.True(t, job.hadDeadline)
}

func TestPublishRequiresRunningQueueAndKnownType(t *testing.T) {
	q := newTestQueue(t, nil)
	q.Register(&recordingJob{})

	_, err := q.PublishMessage(context.Background(), "test.record", params{})
	assert.ErrorContains(t, err, "not running")

	q.running = true
	_, err = q.PublishMessage(context.Background(), "test.other", params{})
	assert.ErrorContains(t, err, "no job registered")
}

func TestKeysAndDefaults(t *testing.T) {
	q := newTestQueue(t, &Config{})
	assert.Equal(t, 1, q.cfg.Workers)
	assert.Equal(t, 10*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, "test:queue:messages", q.queueKey())
	assert.Equal(t, "test:queue:retry", q.retryKey())
	assert.Equal(t, "test:queue:dlq", q.deadLetterKey())
}
