package audit

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a fully in-memory Store. Safe for concurrent access.
// Intended for unit testing and development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists one event.
func (m *MemoryStore) Append(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

// List returns events matching opts in append order.
func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events {
		if !matches(e, opts) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of events matching opts.
func (m *MemoryStore) Count(_ context.Context, opts ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.events {
		if matches(e, opts) {
			n++
		}
	}
	return n, nil
}

func matches(e *Event, opts ListOpts) bool {
	if opts.SessionID != "" && e.SessionID != opts.SessionID {
		return false
	}
	if opts.Destination != "" && e.Destination != opts.Destination {
		return false
	}
	return true
}
