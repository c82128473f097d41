// Package store persists the small amount of client-local durable state
// the engine needs across reloads: per-stream dedup markers, per-room
// read watermarks, and the day-scoped reminder bookkeeping. Each value
// has exactly one writing component; the store itself takes no part in
// their semantics.
package store

import (
	"context"
	"time"
)

// Store is the client-local durable key/value contract. Implementations:
// SQLite (normal operation) and memory (degraded in-session mode when the
// database cannot be opened or written).
type Store interface {
	// Marker returns the persisted dedup marker for a logical stream.
	Marker(ctx context.Context, stream string) (string, bool, error)
	// SetMarker durably records the last admitted id for a stream.
	SetMarker(ctx context.Context, stream, marker string) error

	// LastReadAt returns the read watermark for a room and viewer role.
	LastReadAt(ctx context.Context, room, role string) (time.Time, bool, error)
	// SetLastReadAt records the read watermark for a room and viewer role.
	SetLastReadAt(ctx context.Context, room, role string, at time.Time) error

	// ShownToday reports whether an item key is in the day's shown set.
	ShownToday(ctx context.Context, day, item string) (bool, error)
	// MarkShown adds an item key to the day's shown set.
	MarkShown(ctx context.Context, day, item string) error
	// AutoPassRan reports whether the automatic reminder pass already ran
	// on the given day.
	AutoPassRan(ctx context.Context, day string) (bool, error)
	// MarkAutoPass records that the automatic reminder pass ran today.
	MarkAutoPass(ctx context.Context, day string) error

	// ClearSession removes per-account session state (markers and read
	// watermarks) on logout. Day-scoped reminder state expires naturally
	// at date rollover and is left alone.
	ClearSession(ctx context.Context) error

	Close() error
}

// Day formats a time as the YYYY-MM-DD key used to scope reminder state.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}
