// Package outbox stores domain events in the database and relays them to
// Kafka.
package outbox

import (
	"context"
	"time"
)

// Record is a single outbox row.
type Record struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Store persists outbox records. Insert must ignore duplicates of an
// already stored EventID.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}
