// Package events provides an in-process implementation of the domain event
// bus, used in simulate mode and in tests where no Redis server is running.
// The production path is the Redis-backed bus in internal/cache/redis.
package events

import (
	"context"
	"sync"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events rather than blocking the
// publisher.
const subscriberBuffer = 256

// Bus is a fan-out event bus with non-blocking publish.
type Bus struct {
	mu   sync.Mutex
	subs map[chan domain.Event]struct{}
}

// NewBus creates an empty in-process bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan domain.Event]struct{})}
}

// Publish delivers evt to every subscriber. Slow subscribers are skipped.
func (b *Bus) Publish(_ context.Context, evt domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned channel is closed when
// the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*Bus)(nil)
