package events

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Base
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe("thing.happened", HandlerFunc(func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.AggregateID())
		return nil
	}))
	bus.Subscribe("thing.happened", HandlerFunc(func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.AggregateID())
		return nil
	}))
	bus.Subscribe("other", HandlerFunc(func(_ context.Context, _ Event) error {
		got = append(got, "other")
		return nil
	}))

	err := bus.Publish(context.Background(), testEvent{Base: NewBase("thing.happened", "42")})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:42", "second:42"}, got)
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe("x", HandlerFunc(func(_ context.Context, _ Event) error {
		return errors.New("boom")
	}))
	bus.Subscribe("x", HandlerFunc(func(_ context.Context, _ Event) error {
		called = true
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), testEvent{Base: NewBase("x", "1")}))
	assert.True(t, called)
}

func TestNewBase(t *testing.T) {
	a := NewBase("t", "agg")
	b := NewBase("t", "agg")

	assert.NotEmpty(t, a.EventID())
	assert.NotEqual(t, a.EventID(), b.EventID())
	assert.Equal(t, "t", a.EventType())
	assert.Equal(t, "agg", a.AggregateID())
	assert.False(t, a.OccurredAt().IsZero())
}
