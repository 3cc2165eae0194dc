package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService enqueues a message and returns the id it was stored under.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Job handles every message of one Type. Handle receives the payload as
// json.RawMessage; ParsePayload decodes it.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// Config tunes the worker side of a queue.
type Config struct {
	Workers    int           // concurrent workers
	RetryLimit int           // retries before a message goes to the dead-letter list
	RetryDelay time.Duration // delay before a failed message is retried
	JobTimeout time.Duration // upper bound for one Handle call, 0 for none
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decodePayload[T](p)
	case []byte:
		return decodePayload[T](p)
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload map: %w", err)
		}
		return decodePayload[T](b)
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

func decodePayload[T any](b []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &out, nil
}
