package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventIDHeader = "event_id"

// MessageWriter is the subset of *kafka.Writer used by the relay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a Kafka writer for brokers. Topics are taken from the
// messages, and messages with the same key land on the same partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Relay moves pending outbox records to Kafka.
type Relay struct {
	store    Store
	writer   MessageWriter
	interval time.Duration
	batch    int
}

// NewRelay creates a Relay polling store every interval for up to batch
// records.
func NewRelay(store Store, writer MessageWriter, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		store:    store,
		writer:   writer,
		interval: interval,
		batch:    batch,
	}
}

// Run flushes the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("outbox")
	lg.Info("Relay started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Relay stopped")
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Error("Flush outbox", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Outbox flushed", zap.Int("sent", n))
			}
		}
	}
}

// Flush publishes one batch of pending records and returns how many were
// marked sent. Records that failed to publish stay pending.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	if len(recs) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, len(recs))
	for i, rec := range recs {
		msgs[i] = kafka.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Headers: []kafka.Header{
				{Key: eventIDHeader, Value: []byte(rec.EventID)},
			},
		}
	}

	writeErr := r.writer.WriteMessages(ctx, msgs...)
	var perMessage kafka.WriteErrors
	if writeErr != nil && !errors.As(writeErr, &perMessage) {
		return 0, errors.Wrap(writeErr, "write messages")
	}

	sent := 0
	for i, rec := range recs {
		if perMessage != nil && perMessage[i] != nil {
			continue
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, errors.Wrap(err, "mark sent")
		}
		sent++
	}
	if perMessage != nil {
		return sent, errors.Wrapf(writeErr, "%d of %d messages failed", perMessage.Count(), len(recs))
	}
	return sent, nil
}
