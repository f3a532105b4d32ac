// Package realtime fans incident events out to live stream subscribers.
//
// A Broadcaster owns the registry of subscribers. Each subscriber gets its own
// bounded Queue; publishing never blocks on a subscriber and a full queue drops
// the newest event for that subscriber only.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sst-platform/incidentd/internal/domain/event"
)

// DefaultQueueCapacity is used when no capacity option is given.
const DefaultQueueCapacity = 64

// SubscriberID identifies a registered subscriber. IDs increase strictly and
// are never reused within a Broadcaster's lifetime.
type SubscriberID uint64

// Observer receives registry and fan-out notifications, e.g. for metrics.
// Implementations must not block.
type Observer interface {
	SubscriberAdded(ctx context.Context)
	SubscriberRemoved(ctx context.Context)
	Published(ctx context.Context, eventType event.Type, delivered, dropped int)
}

// Stats is a point-in-time view of the broadcaster counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithQueueCapacity sets the per-subscriber queue capacity. Values below 1 are ignored.
func WithQueueCapacity(n int) Option {
	return func(b *Broadcaster) {
		if n >= 1 {
			b.capacity = n
		}
	}
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(b *Broadcaster) {
		b.observer = o
	}
}

type subscriber struct {
	id    SubscriberID
	queue *Queue
}

// Broadcaster is the in-process publish/subscribe hub.
type Broadcaster struct {
	mu     sync.Mutex
	nextID SubscriberID
	subs   map[SubscriberID]*Queue

	capacity int
	observer Observer

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:     make(map[SubscriberID]*Queue),
		capacity: DefaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register allocates a new subscriber with an empty queue.
func (b *Broadcaster) Register() (SubscriberID, *Queue) {
	q := newQueue(b.capacity)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = q
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.SubscriberAdded(context.Background())
	}
	return id, q
}

// Unregister removes the subscriber if present. Unknown or already removed
// IDs are a no-op; the return value reports whether an entry was removed.
func (b *Broadcaster) Unregister(id SubscriberID) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok && b.observer != nil {
		b.observer.SubscriberRemoved(context.Background())
	}
	return ok
}

// Publish encodes env once and offers the payload to every current subscriber.
// Only an encoding failure is returned; full queues are not errors.
func (b *Broadcaster) Publish(ctx context.Context, env event.Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Type(), err)
	}
	b.fanOut(ctx, env.Type(), payload)
	return nil
}

func (b *Broadcaster) fanOut(ctx context.Context, eventType event.Type, payload []byte) {
	snapshot := b.snapshot()

	delivered, dropped := 0, 0
	for _, s := range snapshot {
		if s.queue.offer(payload) {
			delivered++
			continue
		}
		dropped++
		slog.Debug("stream queue full, event dropped",
			"subscriber_id", uint64(s.id),
			"type", string(eventType),
			"capacity", s.queue.Cap(),
		)
	}

	b.published.Add(1)
	b.delivered.Add(uint64(delivered))
	b.dropped.Add(uint64(dropped))

	if b.observer != nil {
		b.observer.Published(ctx, eventType, delivered, dropped)
	}
}

// snapshot copies the registry under the lock; fan-out happens outside it.
func (b *Broadcaster) snapshot() []subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]subscriber, 0, len(b.subs))
	for id, q := range b.subs {
		out = append(out, subscriber{id: id, queue: q})
	}
	return out
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// QueueCapacity returns the per-subscriber queue capacity.
func (b *Broadcaster) QueueCapacity() int {
	return b.capacity
}

// Stats returns the current counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Subscribers: b.SubscriberCount(),
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
	}
}
