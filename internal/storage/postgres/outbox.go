package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/outbox"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (event_id) DO NOTHING`

	fetchPendingOutboxSQL = `SELECT id, event_id, topic, key, payload, created_at, sent_at
	FROM outbox WHERE sent_at IS NULL
	ORDER BY id LIMIT $1`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = NOW() WHERE id = $1`
)

var _ outbox.Store = (*OutboxRepository)(nil)

// OutboxRepository implements outbox.Store backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Insert(ctx context.Context, rec outbox.Record) error {
	// Payload is already encoded JSON; pass it as text so the jsonb codec does
	// not encode it a second time.
	_, err := r.pool.Exec(ctx, insertOutboxSQL, rec.EventID, rec.Topic, rec.Key, string(rec.Payload))
	if err != nil {
		return errors.Wrapf(err, "insert outbox event %s", rec.EventID)
	}
	return nil
}

// FetchPending returns up to limit unsent records, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.pool.Query(ctx, fetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pending outbox")
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
		var (
			rec     outbox.Record
			payload string
		)
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &payload, &rec.CreatedAt, &rec.SentAt)
		rec.Payload = []byte(payload)
		return rec, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan pending outbox")
	}
	return recs, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, markOutboxSentSQL, id); err != nil {
		return errors.Wrapf(err, "mark outbox %d sent", id)
	}
	return nil
}
