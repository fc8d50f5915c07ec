package eventbus

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"agenthq/internal/domain"
)

// wildcard is the subscription key for handlers that receive every event.
const wildcard domain.EventType = "*"

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus.
// Handlers run on their own goroutine with a context detached from the
// publisher's cancellation, so a finished HTTP request does not cut them short.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscription
	counts map[domain.EventType]int64
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType][]subscription),
		counts: make(map[domain.EventType]int64),
		logger: logger,
	}
}

// Publish fans out an event to subscribers of its type and to wildcard subscribers.
// Panicking handlers are recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	b.counts[event.Type]++
	targets := make([]subscription, 0, len(b.subs[event.Type])+len(b.subs[wildcard]))
	targets = append(targets, b.subs[event.Type]...)
	targets = append(targets, b.subs[wildcard]...)
	b.mu.Unlock()

	hctx := context.WithoutCancel(ctx)
	for _, sub := range targets {
		b.wg.Add(1)
		go b.run(hctx, event, sub)
	}
}

func (b *Bus) run(ctx context.Context, event domain.Event, sub subscription) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(ctx, event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(wildcard, handler)
}

func (b *Bus) add(key domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[key] = append(b.subs[key], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[key]
			for i, s := range subs {
				if s.id == id {
					b.subs[key] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Counts returns how many events of each type have been published.
func (b *Bus) Counts() map[domain.EventType]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.counts)
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
