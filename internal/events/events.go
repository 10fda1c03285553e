// Package events provides the in-process domain event bus.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is an immutable fact published by a domain service.
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
	// AggregateID identifies the entity the event is about.
	AggregateID() string
}

// Base carries the common event fields. Embed it in concrete events.
type Base struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate string    `json:"aggregate_id"`
}

// NewBase returns a Base with a fresh event id.
func NewBase(eventType, aggregateID string) Base {
	return Base{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Aggregate: aggregateID,
	}
}

func (e Base) EventID() string       { return e.ID }
func (e Base) EventType() string     { return e.Type }
func (e Base) OccurredAt() time.Time { return e.Timestamp }
func (e Base) AggregateID() string   { return e.Aggregate }

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler consumes events of the types it is subscribed to.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus delivers events synchronously to subscribed handlers in subscription
// order. A failing handler is logged and does not stop delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for events of the given type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.EventType()]
	b.mu.RUnlock()

	lg := zctx.From(ctx).With(
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID()),
	)
	lg.Debug("Publishing event", zap.Int("handlers", len(handlers)))

	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			lg.Error("Event handler failed", zap.Error(err))
		}
	}
	return nil
}

var _ Publisher = (*Bus)(nil)
