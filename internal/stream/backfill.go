package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
)

// FeedCap bounds the retained notification feed after merging backfill
// with live events.
const FeedCap = 200

// Backfill fetches historical notifications once per session start.
type Backfill struct {
	url    string
	token  string
	client *http.Client
	logger *logger.Logger
}

// NewBackfill creates a backfill fetcher. A nil client gets a default
// with a 15s timeout; unlike the push stream this is a bounded request.
func NewBackfill(url, token string, client *http.Client, log *logger.Logger) *Backfill {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Backfill{
		url:    url,
		token:  token,
		client: client,
		logger: log.WithComponent("backfill"),
	}
}

// Fetch retrieves and normalizes the historical feed. Records that fail
// normalization are logged and skipped; a transport or decode failure
// returns an error and the caller proceeds with an empty history.
func (b *Backfill) Fetch(ctx context.Context) ([]event.Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backfill endpoint returned status %d", resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding backfill response: %w", err)
	}

	now := time.Now()
	out := make([]event.Notification, 0, len(records))
	for _, rec := range records {
		n, ok := event.Normalize(rec, now)
		if !ok {
			b.logger.Warn("skipping malformed backfill record")
			continue
		}
		out = append(out, n)
	}

	b.logger.Info("backfill fetched",
		slog.Int("records", len(records)),
		slog.Int("kept", len(out)))
	return out, nil
}

// Merge combines live and historical notifications, deduplicating by ID
// with the live entry winning, newest first, capped at FeedCap.
func Merge(live, history []event.Notification) []event.Notification {
	seen := make(map[string]struct{}, len(live)+len(history))
	merged := make([]event.Notification, 0, len(live)+len(history))

	for _, n := range live {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}
	for _, n := range history {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Timestamp.After(merged[b].Timestamp)
	})

	if len(merged) > FeedCap {
		merged = merged[:FeedCap]
	}
	return merged
}
