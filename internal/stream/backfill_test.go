package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/veltadesk/pulse/internal/event"
)

func TestBackfillFetchNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"10","title":"first","at":"2026-08-29T10:00:00Z","readed":true},
			{"uuid":"11","message":"second","leida":"si"},
			null
		]`)
	}))
	defer server.Close()

	b := NewBackfill(server.URL, "tok", nil, testLogger())
	got, err := b.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "10" || got[0].Title != "first" || !got[0].Read {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].ID != "11" || got[1].Title != "second" || !got[1].Read {
		t.Errorf("second = %+v", got[1])
	}
}

func TestBackfillFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewBackfill(server.URL, "", nil, testLogger())
	if _, err := b.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	live := []event.Notification{
		{ID: "3", Title: "live three", Timestamp: base.Add(3 * time.Minute)},
		{ID: "1", Title: "live one", Timestamp: base.Add(time.Minute)},
	}
	history := []event.Notification{
		{ID: "1", Title: "stale one", Timestamp: base.Add(time.Minute)},
		{ID: "2", Title: "two", Timestamp: base.Add(2 * time.Minute)},
	}

	merged := Merge(live, history)
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	if merged[0].ID != "3" || merged[1].ID != "2" || merged[2].ID != "1" {
		t.Errorf("order = %s %s %s", merged[0].ID, merged[1].ID, merged[2].ID)
	}
	// The live copy wins on ID collision.
	if merged[2].Title != "live one" {
		t.Errorf("collision title = %q", merged[2].Title)
	}
}

func TestMergeCapsFeed(t *testing.T) {
	base := time.Now()
	var history []event.Notification
	for i := 0; i < FeedCap+50; i++ {
		history = append(history, event.Notification{
			ID:        strconv.Itoa(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	merged := Merge(nil, history)
	if len(merged) != FeedCap {
		t.Fatalf("len = %d, want %d", len(merged), FeedCap)
	}
	// The newest entries survive the cap.
	if merged[0].ID != strconv.Itoa(FeedCap+49) {
		t.Errorf("newest ID = %s", merged[0].ID)
	}
}
