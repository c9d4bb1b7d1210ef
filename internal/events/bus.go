// Package events provides a small typed in-process event bus used to notify
// consumers (menu, CLI, tests) about engine state changes. It is not durable;
// it carries control-flow notifications inside a single process.
package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Bus fans published events out to typed subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]func(ctx context.Context, evt any, block bool) bool
	nextID atomic.Uint64
	closed atomic.Bool
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[reflect.Type]map[uint64]func(context.Context, any, bool) bool),
	}
}

// Subscribe registers a subscription for events of concrete type T.
// The returned channel is buffered; the second return unsubscribes and
// closes the channel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.closed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}
			close(ch)
		})
	}

	deliver := func(ctx context.Context, evt any, block bool) bool {
		v, ok := evt.(T)
		if !ok {
			return false
		}
		if !block {
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		}
		select {
		case ch <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]func(context.Context, any, bool) bool)
	}
	b.subs[eventType][id] = deliver

	return ch, unsubscribe
}

// Publish delivers evt to all subscribers of its concrete type. Delivery
// blocks per subscriber until accepted or ctx is canceled.
func (b *Bus) Publish(ctx context.Context, evt any) {
	b.publish(ctx, evt, true)
}

// TryPublish delivers evt to all subscribers of its concrete type without
// blocking: a subscriber with no buffer space simply misses the event. The
// engine's run loop publishes this way so a stalled consumer can never
// wedge it.
func (b *Bus) TryPublish(evt any) {
	b.publish(context.Background(), evt, false)
}

func (b *Bus) publish(ctx context.Context, evt any, block bool) {
	if b.closed.Load() {
		return
	}

	eventType := reflect.TypeOf(evt)

	b.mu.RLock()
	targets := make([]func(context.Context, any, bool) bool, 0, len(b.subs[eventType]))
	for _, deliver := range b.subs[eventType] {
		targets = append(targets, deliver)
	}
	b.mu.RUnlock()

	for _, deliver := range targets {
		deliver(ctx, evt, block)
	}
}

// SubscriberCount reports active subscribers for events of type T.
func SubscriberCount[T any](b *Bus) int {
	eventType := reflect.TypeFor[T]()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Close marks the bus closed. Subsequent publishes are dropped and new
// subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.closed.Store(true)
}
