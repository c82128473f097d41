package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// stores under test: the SQLite implementation against a temp file and
// the in-memory fallback.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.Marker(ctx, "crm"); err != nil || ok {
				t.Fatalf("expected no marker, got ok=%v err=%v", ok, err)
			}

			if err := s.SetMarker(ctx, "crm", "42"); err != nil {
				t.Fatalf("SetMarker failed: %v", err)
			}
			marker, ok, err := s.Marker(ctx, "crm")
			if err != nil || !ok || marker != "42" {
				t.Fatalf("expected marker '42', got %q ok=%v err=%v", marker, ok, err)
			}

			// Overwrite.
			if err := s.SetMarker(ctx, "crm", "43"); err != nil {
				t.Fatalf("SetMarker overwrite failed: %v", err)
			}
			marker, _, _ = s.Marker(ctx, "crm")
			if marker != "43" {
				t.Errorf("expected marker '43' after overwrite, got %q", marker)
			}

			// Streams are independent.
			if _, ok, _ := s.Marker(ctx, "chat"); ok {
				t.Error("marker leaked across streams")
			}
		})
	}
}

func TestLastReadAtKeyedByRoomAndRole(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

			if err := s.SetLastReadAt(ctx, "room-1", "advisor", at); err != nil {
				t.Fatalf("SetLastReadAt failed: %v", err)
			}

			got, ok, err := s.LastReadAt(ctx, "room-1", "advisor")
			if err != nil || !ok {
				t.Fatalf("LastReadAt failed: ok=%v err=%v", ok, err)
			}
			if !got.Equal(at) {
				t.Errorf("expected %v, got %v", at, got)
			}

			// Same room, different role: separate watermark.
			if _, ok, _ := s.LastReadAt(ctx, "room-1", "student"); ok {
				t.Error("watermark leaked across roles")
			}
		})
	}
}

func TestShownSetIsDayScoped(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.MarkShown(ctx, "2025-06-01", "payment:9"); err != nil {
				t.Fatalf("MarkShown failed: %v", err)
			}
			// Idempotent.
			if err := s.MarkShown(ctx, "2025-06-01", "payment:9"); err != nil {
				t.Fatalf("MarkShown repeat failed: %v", err)
			}

			shown, err := s.ShownToday(ctx, "2025-06-01", "payment:9")
			if err != nil || !shown {
				t.Fatalf("expected shown, got %v err=%v", shown, err)
			}

			// New date ⇒ empty set.
			shown, _ = s.ShownToday(ctx, "2025-06-02", "payment:9")
			if shown {
				t.Error("shown set must reset at date rollover")
			}
		})
	}
}

func TestAutoPassFlag(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ran, err := s.AutoPassRan(ctx, "2025-06-01")
			if err != nil || ran {
				t.Fatalf("expected auto pass not ran, got %v err=%v", ran, err)
			}

			if err := s.MarkAutoPass(ctx, "2025-06-01"); err != nil {
				t.Fatalf("MarkAutoPass failed: %v", err)
			}
			ran, _ = s.AutoPassRan(ctx, "2025-06-01")
			if !ran {
				t.Error("expected auto pass recorded")
			}

			ran, _ = s.AutoPassRan(ctx, "2025-06-02")
			if ran {
				t.Error("auto pass flag must reset at date rollover")
			}
		})
	}
}

func TestClearSession(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s.SetMarker(ctx, "crm", "99")
			s.SetLastReadAt(ctx, "room-1", "advisor", time.Now())
			s.MarkShown(ctx, "2025-06-01", "payment:9")

			if err := s.ClearSession(ctx); err != nil {
				t.Fatalf("ClearSession failed: %v", err)
			}

			if _, ok, _ := s.Marker(ctx, "crm"); ok {
				t.Error("marker survived logout")
			}
			if _, ok, _ := s.LastReadAt(ctx, "room-1", "advisor"); ok {
				t.Error("read watermark survived logout")
			}
			// Day-scoped reminder state is intentionally untouched.
			if shown, _ := s.ShownToday(ctx, "2025-06-01", "payment:9"); !shown {
				t.Error("shown set should survive logout")
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.SetMarker(ctx, "crm", "42"); err != nil {
		t.Fatalf("SetMarker failed: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	marker, ok, err := s.Marker(ctx, "crm")
	if err != nil || !ok || marker != "42" {
		t.Fatalf("marker did not survive reopen: %q ok=%v err=%v", marker, ok, err)
	}
}

func TestDay(t *testing.T) {
	at := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	if got := Day(at); got != "2025-06-01" {
		t.Errorf("expected '2025-06-01', got %q", got)
	}
}
