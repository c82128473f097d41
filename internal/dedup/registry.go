// Package dedup suppresses duplicate and replayed deliveries per logical
// stream. The durable part is a single marker (the last admitted id),
// which survives reloads so a refreshed client does not re-present an
// already-shown notification; the session-scoped seen set guards against
// near-duplicate bursts within one run.
package dedup

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
	"github.com/veltadesk/pulse/internal/store"
)

const (
	// seenCap bounds the session-scoped id set.
	seenCap = 500
	// seenKeep is how many most-recent ids survive a trim.
	seenKeep = 250
)

// Registry is the admission filter for one logical stream. All methods
// are safe for concurrent use, though in practice a registry has a single
// feeding goroutine (single-owner-writes).
type Registry struct {
	stream string
	store  store.Store
	logger *logger.Logger

	mu     sync.Mutex
	marker string
	seen   map[string]struct{}
	order  []string

	// degraded flips after the first persist failure; the registry keeps
	// working in memory for the rest of the session.
	degraded bool
}

// NewRegistry creates the admission filter for a stream, loading the
// persisted marker if one survives from a previous session.
func NewRegistry(ctx context.Context, stream string, st store.Store, log *logger.Logger) *Registry {
	r := &Registry{
		stream: stream,
		store:  st,
		logger: log.WithComponent("dedup"),
		seen:   make(map[string]struct{}),
	}

	marker, ok, err := st.Marker(ctx, stream)
	if err != nil {
		r.logger.Warn("failed to load persisted marker, starting clean",
			slog.String("stream", stream),
			slog.String("error", err.Error()))
	} else if ok {
		r.marker = marker
		r.logger.Debug("loaded persisted marker",
			slog.String("stream", stream),
			slog.String("marker", marker))
	}

	return r
}

// Admit decides whether a notification id may be presented. On admission
// the marker advances to the id and is persisted synchronously.
//
// Rules, in order:
//   - an id already seen this session is rejected
//   - when both id and marker parse as numbers, admit iff id > marker
//   - otherwise admit iff id differs from the marker; non-numeric ids
//     are only ever rejected on an exact match
func (r *Registry) Admit(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[id]; dup {
		metrics.DuplicatesRejected.WithLabelValues(r.stream).Inc()
		return false
	}

	if r.marker != "" {
		idNum, idErr := strconv.ParseFloat(id, 64)
		markerNum, markerErr := strconv.ParseFloat(r.marker, 64)

		if idErr == nil && markerErr == nil {
			if idNum <= markerNum {
				metrics.DuplicatesRejected.WithLabelValues(r.stream).Inc()
				return false
			}
		} else if id == r.marker {
			metrics.DuplicatesRejected.WithLabelValues(r.stream).Inc()
			return false
		}
	}

	r.remember(id)
	r.marker = id
	r.persist(ctx, id)

	metrics.NotificationsAdmitted.WithLabelValues(r.stream).Inc()
	return true
}

// Reset clears the marker and the session seen set, for logout. The
// persisted marker row is cleared separately through the store.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marker = ""
	r.seen = make(map[string]struct{})
	r.order = nil
}

// Marker returns the current marker (last admitted id).
func (r *Registry) Marker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marker
}

// SeenCount returns the size of the session-scoped seen set.
func (r *Registry) SeenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// remember records an id in the bounded seen set, trimming to the most
// recent entries on overflow. Caller holds r.mu.
func (r *Registry) remember(id string) {
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)

	if len(r.order) > seenCap {
		cut := r.order[:len(r.order)-seenKeep]
		for _, old := range cut {
			delete(r.seen, old)
		}
		kept := make([]string, seenKeep)
		copy(kept, r.order[len(r.order)-seenKeep:])
		r.order = kept
	}
}

// persist writes the marker through to durable storage. A failure logs
// once and degrades to in-memory operation for the rest of the session.
// Caller holds r.mu.
func (r *Registry) persist(ctx context.Context, marker string) {
	if r.degraded {
		return
	}
	if err := r.store.SetMarker(ctx, r.stream, marker); err != nil {
		r.degraded = true
		r.logger.Warn("marker persistence failed, continuing in-memory for this session",
			slog.String("stream", r.stream),
			slog.String("error", err.Error()))
	}
}
