package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"reconquest/internal"
)

func TestBusPublishToAllSubscribers(t *testing.T) {
	bus := NewBus[internal.PlanRequest]("plan.requested", zap.NewNop())

	var first, second []string
	bus.Subscribe(func(_ context.Context, e internal.PlanRequest) error {
		first = append(first, e.SubjectID)
		return nil
	})
	bus.Subscribe(func(_ context.Context, e internal.PlanRequest) error {
		second = append(second, e.SubjectID)
		return nil
	})

	n := bus.Publish(context.Background(), internal.PlanRequest{SubjectID: "inv-1"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"inv-1"}, first)
	assert.Equal(t, []string{"inv-1"}, second)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus[int]("n", nil)
	calls := 0
	unsubscribe := bus.Subscribe(func(context.Context, int) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), 1)
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), 2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBusIsolatesFailingHandlers(t *testing.T) {
	bus := NewBus[int]("n", zap.NewNop())
	reached := false
	bus.Subscribe(func(context.Context, int) error { panic("boom") })
	bus.Subscribe(func(context.Context, int) error { return errors.New("nope") })
	bus.Subscribe(func(context.Context, int) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		assert.Equal(t, 1, bus.Publish(context.Background(), 7))
	})
	assert.True(t, reached)
}

func TestBusWithoutSubscribers(t *testing.T) {
	bus := NewBus[string]("s", nil)
	assert.Equal(t, 0, bus.Publish(context.Background(), "nobody"))
}
