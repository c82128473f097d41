package unread

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/veltadesk/pulse/internal/bus"
	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/store"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError})
}

func notif(id, room string, at time.Time) event.Notification {
	return event.Notification{ID: id, Room: room, Timestamp: at}
}

func TestRecordIncrementsPerRoom(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker("operator", "tab-1", store.NewMemory(), nil, testLogger())
	now := time.Now()

	tr.Record(ctx, notif("1", "room-a", now))
	tr.Record(ctx, notif("2", "room-a", now.Add(time.Second)))
	tr.Record(ctx, notif("3", "room-b", now))

	if got := tr.Count("room-a"); got != 2 {
		t.Errorf("room-a count = %d, want 2", got)
	}
	if got := tr.Count("room-b"); got != 1 {
		t.Errorf("room-b count = %d, want 1", got)
	}

	counts := tr.Counts()
	if len(counts) != 2 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestRecordSkipsNonQualifying(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	watermark := time.Now()
	if err := st.SetLastReadAt(ctx, "room-a", "operator", watermark); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker("operator", "tab-1", st, nil, testLogger())

	// No room.
	tr.Record(ctx, notif("1", "", watermark.Add(time.Second)))
	// Already read.
	n := notif("2", "room-a", watermark.Add(time.Second))
	n.Read = true
	tr.Record(ctx, n)
	// At or before the persisted watermark.
	tr.Record(ctx, notif("3", "room-a", watermark))
	tr.Record(ctx, notif("4", "room-a", watermark.Add(-time.Minute)))
	// Sent by the viewer's own role.
	own := notif("5", "room-a", watermark.Add(time.Second))
	own.SenderRole = "operator"
	tr.Record(ctx, own)

	if got := tr.Count("room-a"); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}

	// Past the watermark qualifies.
	tr.Record(ctx, notif("6", "room-a", watermark.Add(time.Second)))
	if got := tr.Count("room-a"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestMarkReadZeroesAndPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	tr := NewTracker("operator", "tab-1", st, nil, testLogger())

	readAt := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return readAt }

	tr.Record(ctx, notif("1", "room-a", readAt.Add(-time.Minute)))
	if err := tr.MarkRead(ctx, "room-a"); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}

	if got := tr.Count("room-a"); got != 0 {
		t.Errorf("count after MarkRead = %d", got)
	}
	persisted, found, err := st.LastReadAt(ctx, "room-a", "operator")
	if err != nil || !found {
		t.Fatalf("LastReadAt: %v, found=%v", err, found)
	}
	if !persisted.Equal(readAt) {
		t.Errorf("persisted watermark = %v, want %v", persisted, readAt)
	}

	// Events at or before the new watermark no longer count.
	tr.Record(ctx, notif("2", "room-a", readAt.Add(-time.Second)))
	if got := tr.Count("room-a"); got != 0 {
		t.Errorf("stale event counted after MarkRead")
	}
}

func TestCrossConsumerConvergence(t *testing.T) {
	ctx := context.Background()
	b := bus.New()
	now := time.Now()

	a := NewTracker("operator", "tab-a", store.NewMemory(), NewBusSyncer(b), testLogger())
	other := NewTracker("operator", "tab-b", store.NewMemory(), NewBusSyncer(b), testLogger())
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	if err := other.Start(); err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer other.Close()

	a.Record(ctx, notif("1", "room-a", now))
	other.Record(ctx, notif("1", "room-a", now))

	if err := a.MarkRead(ctx, "room-a"); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if other.Count("room-a") == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := other.Count("room-a"); got != 0 {
		t.Fatalf("other consumer count = %d, never converged", got)
	}

	// The marking consumer keeps its own zero; its receipt is ignored
	// when echoed back.
	if got := a.Count("room-a"); got != 0 {
		t.Errorf("marking consumer count = %d", got)
	}
}

func TestApplyReceiptLastWriterWins(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker("operator", "tab-1", store.NewMemory(), nil, testLogger())
	now := time.Now()

	tr.Record(ctx, notif("1", "room-a", now))
	tr.ApplyReceipt(Receipt{Room: "room-a", Role: "operator", ReadAt: now.Add(time.Second), ConsumerID: "tab-2"})
	if got := tr.Count("room-a"); got != 0 {
		t.Fatalf("count after newer receipt = %d", got)
	}

	// An older receipt arriving late must not move the watermark back.
	tr.Record(ctx, notif("2", "room-a", now.Add(2*time.Second)))
	tr.ApplyReceipt(Receipt{Room: "room-a", Role: "operator", ReadAt: now, ConsumerID: "tab-3"})
	if got := tr.Count("room-a"); got != 1 {
		t.Errorf("count after stale receipt = %d, want 1", got)
	}
}

func TestApplyReceiptFilters(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker("operator", "tab-1", store.NewMemory(), nil, testLogger())
	now := time.Now()
	tr.Record(ctx, notif("1", "room-a", now))

	// Own receipt echoed back.
	tr.ApplyReceipt(Receipt{Room: "room-a", Role: "operator", ReadAt: now.Add(time.Hour), ConsumerID: "tab-1"})
	if got := tr.Count("room-a"); got != 1 {
		t.Errorf("count after own receipt = %d, want 1", got)
	}

	// Receipt for a different viewer role.
	tr.ApplyReceipt(Receipt{Room: "room-a", Role: "supervisor", ReadAt: now.Add(time.Hour), ConsumerID: "tab-2"})
	if got := tr.Count("room-a"); got != 1 {
		t.Errorf("count after other-role receipt = %d, want 1", got)
	}
}
