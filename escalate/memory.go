package escalate

import (
	"context"
	"sync"
	"time"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/id"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a fully in-memory escalation Store. Safe for concurrent
// access. Intended for unit testing and development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Push records an escalation entry.
func (m *MemoryStore) Push(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

// List returns entries matching opts, oldest first.
func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Entry
	for _, e := range m.entries {
		if matchesEntry(e, opts) {
			matched = append(matched, e)
		}
	}

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	out := make([]*Entry, len(matched))
	for i, e := range matched {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// Get retrieves an entry by ID.
func (m *MemoryStore) Get(_ context.Context, entryID id.ID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ID == entryID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sendq.ErrEscalationNotFound
}

// MarkReplayed sets ReplayedAt on an entry.
func (m *MemoryStore) MarkReplayed(_ context.Context, entryID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == entryID {
			now := time.Now().UTC()
			e.ReplayedAt = &now
			return nil
		}
	}
	return sendq.ErrEscalationNotFound
}

// Purge removes entries escalated before the given time.
func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*Entry
	var purged int64
	for _, e := range m.entries {
		if e.EscalatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

// Count returns the number of entries matching opts.
func (m *MemoryStore) Count(_ context.Context, opts ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.entries {
		if matchesEntry(e, opts) {
			n++
		}
	}
	return n, nil
}

func matchesEntry(e *Entry, opts ListOpts) bool {
	if opts.SessionID != "" && e.SessionID != opts.SessionID {
		return false
	}
	if opts.Destination != "" && e.Destination != opts.Destination {
		return false
	}
	return true
}
