package escalate

import (
	"context"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
)

// Requeuer re-dispatches a session to a set of destinations. It is
// implemented by the dispatcher; the indirection keeps this package free
// of a dependency on it.
type Requeuer interface {
	Requeue(ctx context.Context, sessionID string, destinations map[destination.Destination]destination.AuthorityContext) error
}

// Replay re-dispatches the session behind an escalation entry to the
// destination that originally failed, with a fresh retry budget, and marks
// the entry as replayed.
func (s *Service) Replay(ctx context.Context, rq Requeuer, entryID id.ID) (*Entry, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	dests := map[destination.Destination]destination.AuthorityContext{
		entry.Destination: entry.Authority,
	}
	if err := rq.Requeue(ctx, entry.SessionID, dests); err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		// The session is already requeued. Return the entry with the error
		// so the caller can decide.
		return entry, err
	}
	return entry, nil
}
