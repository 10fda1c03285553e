package outbox

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/events"
	"github.com/xenking/storefront-orders/internal/wire"
)

var _ events.Handler = (*Subscriber)(nil)

// Subscriber stores order.updated events in the outbox for the relay. It runs
// after the order commit, so the insert is not part of the order transaction.
type Subscriber struct {
	store Store
	topic string
}

// NewSubscriber returns a Subscriber writing records for topic.
func NewSubscriber(store Store, topic string) *Subscriber {
	return &Subscriber{store: store, topic: topic}
}

// Handle implements events.Handler.
func (s *Subscriber) Handle(ctx context.Context, ev events.Event) error {
	updated, ok := ev.(order.UpdatedEvent)
	if !ok {
		return errors.Errorf("unexpected event %T", ev)
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	wire.EncodeUpdatedEvent(e, updated)

	return s.store.Insert(ctx, Record{
		EventID: updated.EventID(),
		Topic:   s.topic,
		Key:     updated.Detail.Order.Index,
		Payload: bytes.Clone(e.Bytes()),
	})
}
