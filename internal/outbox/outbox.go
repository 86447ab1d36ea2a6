package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Record is an event written in the same transaction as the state change it
// describes, and relayed to Kafka afterwards.
type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

type Writer interface {
	Add(ctx context.Context, r Record) error
}

type Repository interface {
	Writer
	// FetchPending returns unsent records oldest first, locked against other
	// relays until the surrounding transaction ends.
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}
