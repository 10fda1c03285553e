package order

import "github.com/xenking/storefront-orders/internal/events"

// EventUpdated is published whenever an order is placed or changed.
const EventUpdated = "order.updated"

// UpdatedEvent carries the current state of an order.
type UpdatedEvent struct {
	events.Base
	Detail *Detail
}

// NewUpdatedEvent creates an UpdatedEvent for the given detail.
func NewUpdatedEvent(d *Detail) UpdatedEvent {
	return UpdatedEvent{
		Base:   events.NewBase(EventUpdated, d.Order.AggregateID()),
		Detail: d,
	}
}
