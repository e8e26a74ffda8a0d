package escalate

import (
	"context"
	"time"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
)

// ListOpts controls pagination and filtering for escalation list queries.
type ListOpts struct {
	// SessionID filters by session. Empty means all sessions.
	SessionID string
	// Destination filters by destination. Empty means all destinations.
	Destination destination.Destination
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
}

// Store defines the persistence contract for the escalation queue.
type Store interface {
	// Push records an escalation entry.
	Push(ctx context.Context, entry *Entry) error

	// List returns escalation entries matching the given options, oldest
	// first.
	List(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// Get retrieves an escalation entry by ID.
	Get(ctx context.Context, entryID id.ID) (*Entry, error)

	// MarkReplayed sets ReplayedAt on an entry. The actual re-dispatch is
	// handled at the service layer.
	MarkReplayed(ctx context.Context, entryID id.ID) error

	// Purge removes entries with EscalatedAt before the given time.
	// Returns the number of entries removed.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// Count returns the number of entries matching the given options.
	Count(ctx context.Context, opts ListOpts) (int64, error)
}
