// Package unread tracks per-room unread counts for a viewer role and
// converges them across consumers through read receipts.
package unread

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/store"
)

// Receipt announces that a consumer marked a room read at a moment in
// time. Receipts resolve last-writer-wins on ReadAt.
type Receipt struct {
	Room       string    `json:"room"`
	Role       string    `json:"role"`
	ReadAt     time.Time `json:"read_at"`
	ConsumerID string    `json:"consumer_id"`
}

// Syncer carries read receipts between consumers of the same account.
type Syncer interface {
	Broadcast(ctx context.Context, r Receipt) error
	Subscribe(handler func(Receipt)) error
	Close() error
}

// Tracker maintains unread counts per room for one viewer role. The
// lastReadAt watermark persists through internal/store; counts themselves
// are session state rebuilt from the feed.
type Tracker struct {
	role       string
	consumerID string
	store      store.Store
	syncer     Syncer
	logger     *logger.Logger

	now func() time.Time

	mu     sync.Mutex
	counts map[string]int
	readAt map[string]time.Time
}

// NewTracker creates a tracker. syncer may be nil for a standalone
// consumer.
func NewTracker(role, consumerID string, st store.Store, syncer Syncer, log *logger.Logger) *Tracker {
	return &Tracker{
		role:       role,
		consumerID: consumerID,
		store:      st,
		syncer:     syncer,
		logger:     log.WithComponent("unread"),
		now:        time.Now,
		counts:     make(map[string]int),
		readAt:     make(map[string]time.Time),
	}
}

// Start subscribes to receipts from other consumers.
func (t *Tracker) Start() error {
	if t.syncer == nil {
		return nil
	}
	return t.syncer.Subscribe(t.ApplyReceipt)
}

// Record counts a notification against its room. Events already flagged
// read, events without a room, events sent by this viewer role, and
// events at or before the persisted lastReadAt watermark do not qualify.
func (t *Tracker) Record(ctx context.Context, n event.Notification) {
	if n.Room == "" || n.Read {
		return
	}
	if n.SenderRole != "" && n.SenderRole == t.role {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	watermark, cached := t.readAt[n.Room]
	if !cached {
		persisted, found, err := t.store.LastReadAt(ctx, n.Room, t.role)
		if err != nil {
			t.logger.Warn("reading watermark failed",
				slog.String("room", n.Room),
				slog.String("error", err.Error()))
		} else if found {
			watermark = persisted
		}
		t.readAt[n.Room] = watermark
	}
	if !n.Timestamp.After(watermark) {
		return
	}

	t.counts[n.Room]++
}

// MarkRead zeroes a room's count, persists the watermark, and broadcasts
// a receipt so other consumers converge without server calls.
func (t *Tracker) MarkRead(ctx context.Context, room string) error {
	readAt := t.now()

	t.mu.Lock()
	t.counts[room] = 0
	t.readAt[room] = readAt
	t.mu.Unlock()

	if err := t.store.SetLastReadAt(ctx, room, t.role, readAt); err != nil {
		t.logger.Warn("persisting read watermark failed",
			slog.String("room", room),
			slog.String("error", err.Error()))
	}

	if t.syncer == nil {
		return nil
	}
	receipt := Receipt{
		Room:       room,
		Role:       t.role,
		ReadAt:     readAt,
		ConsumerID: t.consumerID,
	}
	if err := t.syncer.Broadcast(ctx, receipt); err != nil {
		t.logger.Warn("broadcasting read receipt failed",
			slog.String("room", room),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ApplyReceipt merges a receipt from another consumer. Receipts from this
// consumer, for other roles, or older than the local watermark are
// ignored.
func (t *Tracker) ApplyReceipt(r Receipt) {
	if r.ConsumerID == t.consumerID || r.Role != t.role {
		return
	}

	t.mu.Lock()
	local := t.readAt[r.Room]
	if !r.ReadAt.After(local) {
		t.mu.Unlock()
		return
	}
	t.readAt[r.Room] = r.ReadAt
	t.counts[r.Room] = 0
	t.mu.Unlock()

	if err := t.store.SetLastReadAt(context.Background(), r.Room, t.role, r.ReadAt); err != nil {
		t.logger.Warn("persisting remote watermark failed",
			slog.String("room", r.Room),
			slog.String("error", err.Error()))
	}

	t.logger.Debug("converged on remote receipt",
		slog.String("room", r.Room),
		slog.String("consumer_id", r.ConsumerID))
}

// Reset drops all in-memory counts and cached watermarks, for logout.
// Persisted watermarks are cleared separately through the store.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]int)
	t.readAt = make(map[string]time.Time)
}

// Count reports one room's unread count.
func (t *Tracker) Count(room string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[room]
}

// Counts snapshots all rooms with a non-zero count.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	for room, n := range t.counts {
		if n > 0 {
			out[room] = n
		}
	}
	return out
}

// Close releases the syncer subscription.
func (t *Tracker) Close() error {
	if t.syncer == nil {
		return nil
	}
	return t.syncer.Close()
}
