package unread

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/veltadesk/pulse/internal/logger"
)

// NATS subject for read receipt fan-out between consumers.
const receiptSubject = "pulse.unread.receipt"

// NatsSyncer fans read receipts out across consumers through NATS. Every
// consumer of the same account subscribes to one subject; the tracker
// filters out its own receipts by consumer id.
type NatsSyncer struct {
	nc           *nats.Conn
	logger       *logger.Logger
	subscription *nats.Subscription
}

// NewNatsSyncer creates a NATS-backed syncer. Returns nil if the NATS
// connection is not available; the tracker treats a nil syncer as
// standalone mode.
func NewNatsSyncer(nc *nats.Conn, log *logger.Logger) *NatsSyncer {
	if nc == nil {
		return nil
	}
	return &NatsSyncer{
		nc:     nc,
		logger: log.WithComponent("receipt-sync"),
	}
}

// Broadcast publishes a receipt to all consumers.
func (s *NatsSyncer) Broadcast(ctx context.Context, r Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if err := s.nc.Publish(receiptSubject, data); err != nil {
		return fmt.Errorf("failed to publish receipt: %w", err)
	}
	return nil
}

// Subscribe starts listening for receipts from other consumers.
func (s *NatsSyncer) Subscribe(handler func(Receipt)) error {
	sub, err := s.nc.Subscribe(receiptSubject, func(msg *nats.Msg) {
		var r Receipt
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			s.logger.Warn("received invalid receipt", slog.String("error", err.Error()))
			return
		}
		handler(r)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", receiptSubject, err)
	}

	s.subscription = sub
	s.logger.Info("receipt sync started", slog.String("subject", receiptSubject))
	return nil
}

// Close drains the subscription.
func (s *NatsSyncer) Close() error {
	if s.subscription != nil {
		if err := s.subscription.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
	}
	return nil
}
