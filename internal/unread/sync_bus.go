package unread

import (
	"context"
	"time"

	"github.com/veltadesk/pulse/internal/bus"
)

// BusSyncer loops read receipts through the in-process bus. It stands in
// for NATS when no broker is configured, so multiple trackers in one
// process (or tests) still converge through the same receipt path.
type BusSyncer struct {
	bus    *bus.Bus
	cancel func()
}

// NewBusSyncer creates a loopback syncer over the shared bus.
func NewBusSyncer(b *bus.Bus) *BusSyncer {
	return &BusSyncer{bus: b}
}

// Broadcast publishes the receipt on the bus.
func (s *BusSyncer) Broadcast(_ context.Context, r Receipt) error {
	s.bus.Publish(bus.Event{Topic: bus.TopicReadReceipt, Time: time.Now(), Data: r})
	return nil
}

// Subscribe dispatches bus receipts to the handler until Close.
func (s *BusSyncer) Subscribe(handler func(Receipt)) error {
	ch, cancel := s.bus.Subscribe(bus.TopicReadReceipt, 16)
	s.cancel = cancel

	go func() {
		for e := range ch {
			if r, ok := e.Data.(Receipt); ok {
				handler(r)
			}
		}
	}()
	return nil
}

// Close tears down the subscription.
func (s *BusSyncer) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}
