package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var errPanicked = errors.New("handler panicked")

// Handler receives one published event. A returned error is logged and does
// not stop delivery to the remaining handlers.
type Handler[T any] func(ctx context.Context, event T) error

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus is an in-memory synchronous pub/sub for a single event type.
type Bus[T any] struct {
	name   string
	logger *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

func NewBus[T any](name string, logger *zap.Logger) *Bus[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus[T]{name: name, logger: logger}
}

// Subscribe registers h and returns a func that removes it again.
func (b *Bus[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, handler: h})
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.String("event_type", b.name), zap.Uint64("subscription", id))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers event to every current subscriber and returns how many
// handled it without error or panic.
func (b *Bus[T]) Publish(ctx context.Context, event T) int {
	b.mu.RLock()
	subs := make([]subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if err := b.dispatch(ctx, s, event); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", b.name),
				zap.Uint64("subscription", s.id),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) dispatch(ctx context.Context, s subscription[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", b.name),
				zap.Any("panic", r),
			)
			err = errPanicked
		}
	}()
	return s.handler(ctx, event)
}
