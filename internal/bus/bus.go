package bus

import (
	"sync"
	"time"
)

// Topic names used across the engine. Components publish and subscribe via
// an injected *Bus owned by the composition root; there is no ambient
// global dispatch.
const (
	// TopicInteraction fires on the first user interaction observed by any
	// surface (control API request, host callback). The sound gate arms on it.
	TopicInteraction = "ui.interaction"

	// TopicReadReceipt carries loopback read receipts for unread convergence
	// when no external broker is configured.
	TopicReadReceipt = "unread.receipt"

	// TopicNotification carries admitted notifications for observers that
	// want the post-dedup feed (status surface, hosts embedding the engine).
	TopicNotification = "notification.admitted"
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Subscriber channels are buffered; a slow subscriber drops events.
//
// Payloads should be small, immutable values.
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

// Bus is a simple fanout publish/subscribe primitive. It owns no background
// goroutines; delivery happens inline on Publish.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscription
	seq  uint64
}

type subscription struct {
	topic string // empty matches every topic
	ch    chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Publish delivers the event to every matching subscriber without blocking.
// Events for subscribers with full buffers are dropped.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Snapshot subscribers so sends happen outside the lock.
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.topic == "" || sub.topic == e.Topic {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		// A subscriber may unsubscribe (and close its channel) between the
		// snapshot and the send; recover makes that race harmless.
		func() {
			defer func() { _ = recover() }()
			select {
			case sub.ch <- e:
			default:
				// Subscriber lagging; drop rather than stall the publisher.
			}
		}()
	}
}

// Subscribe registers a subscriber for one topic (or every topic when topic
// is empty) and returns its receive channel plus an unsubscribe func.
// Unsubscribe is idempotent and closes the channel.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{topic: topic, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}
