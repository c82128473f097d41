package store

import (
	"context"
	"sync"
	"time"
)

// memoryStore is the degraded in-session fallback used when durable
// storage is unavailable (quota, permissions, corrupt file). Dedup and
// unread tracking keep working within the session; nothing survives a
// restart.
type memoryStore struct {
	mu       sync.RWMutex
	markers  map[string]string
	reads    map[string]time.Time
	shown    map[string]map[string]struct{}
	autoPass map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		markers:  make(map[string]string),
		reads:    make(map[string]time.Time),
		shown:    make(map[string]map[string]struct{}),
		autoPass: make(map[string]bool),
	}
}

func readKey(room, role string) string {
	return room + "\x00" + role
}

func (m *memoryStore) Marker(_ context.Context, stream string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	marker, ok := m.markers[stream]
	return marker, ok, nil
}

func (m *memoryStore) SetMarker(_ context.Context, stream, marker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[stream] = marker
	return nil
}

func (m *memoryStore) LastReadAt(_ context.Context, room, role string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.reads[readKey(room, role)]
	return at, ok, nil
}

func (m *memoryStore) SetLastReadAt(_ context.Context, room, role string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[readKey(room, role)] = at
	return nil
}

func (m *memoryStore) ShownToday(_ context.Context, day, item string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.shown[day]
	if !ok {
		return false, nil
	}
	_, shown := set[item]
	return shown, nil
}

func (m *memoryStore) MarkShown(_ context.Context, day, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.shown[day]
	if !ok {
		set = make(map[string]struct{})
		m.shown[day] = set
	}
	set[item] = struct{}{}
	return nil
}

func (m *memoryStore) AutoPassRan(_ context.Context, day string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoPass[day], nil
}

func (m *memoryStore) MarkAutoPass(_ context.Context, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoPass[day] = true
	return nil
}

func (m *memoryStore) ClearSession(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers = make(map[string]string)
	m.reads = make(map[string]time.Time)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
