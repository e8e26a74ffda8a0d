// Package status provides deterministic observation of delivery outcomes.
//
// The dispatcher acknowledges Queue synchronously and resolves attempts
// detached, so callers cannot learn terminal state from the Queue return
// value. A [Tracker] registered as a dispatcher extension records every
// per-destination state transition and keeps it after the delivery's Job
// is gone, giving tests and operators something to poll or wait on instead
// of log lines.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/ext"
	"github.com/theopensystemslab/sendq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Tracker)(nil)
	_ ext.AttemptQueued    = (*Tracker)(nil)
	_ ext.AlreadySubmitted = (*Tracker)(nil)
	_ ext.AttemptSucceeded = (*Tracker)(nil)
	_ ext.AttemptFailed    = (*Tracker)(nil)
	_ ext.AttemptRetrying  = (*Tracker)(nil)
	_ ext.Escalated        = (*Tracker)(nil)
)

// Tracker records per-(session, destination) delivery state from lifecycle
// events. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]map[destination.Destination]job.State
	waiters  []*waiter
}

type waiter struct {
	sessionID string
	dests     []destination.Destination
	ch        chan struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]map[destination.Destination]job.State),
	}
}

// Name implements ext.Extension.
func (t *Tracker) Name() string { return "status-tracker" }

// OnAttemptQueued implements ext.AttemptQueued.
func (t *Tracker) OnAttemptQueued(_ context.Context, sub *destination.Submission) error {
	t.set(sub.SessionID, sub.Destination, job.StateInFlight)
	return nil
}

// OnAlreadySubmitted implements ext.AlreadySubmitted.
func (t *Tracker) OnAlreadySubmitted(_ context.Context, sessionID string, dest destination.Destination) error {
	t.set(sessionID, dest, job.StateAlreadySubmitted)
	return nil
}

// OnAttemptSucceeded implements ext.AttemptSucceeded.
func (t *Tracker) OnAttemptSucceeded(_ context.Context, sub *destination.Submission, _ destination.Receipt, _ time.Duration) error {
	t.set(sub.SessionID, sub.Destination, job.StateSucceeded)
	return nil
}

// OnAttemptFailed implements ext.AttemptFailed.
func (t *Tracker) OnAttemptFailed(_ context.Context, sub *destination.Submission, _ error) error {
	t.set(sub.SessionID, sub.Destination, job.StateFailed)
	return nil
}

// OnAttemptRetrying implements ext.AttemptRetrying.
func (t *Tracker) OnAttemptRetrying(_ context.Context, sub *destination.Submission, _ time.Time) error {
	t.set(sub.SessionID, sub.Destination, job.StateRetrying)
	return nil
}

// OnEscalated implements ext.Escalated.
func (t *Tracker) OnEscalated(_ context.Context, sub *destination.Submission, _ error) error {
	t.set(sub.SessionID, sub.Destination, job.StateEscalated)
	return nil
}

// Snapshot returns a copy of the known states for a session. The second
// return is false if the session has never been seen.
func (t *Tracker) Snapshot(sessionID string) (map[destination.Destination]job.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	states, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	out := make(map[destination.Destination]job.State, len(states))
	for dest, s := range states {
		out[dest] = s
	}
	return out, true
}

// State returns the known state for one (session, destination) pair.
func (t *Tracker) State(sessionID string, dest destination.Destination) (job.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID][dest]
	return s, ok
}

// Done returns a channel that closes once every listed destination for the
// session has reached a terminal state. The caller names the destinations
// it queued; the tracker cannot know the full set before events for all of
// them have arrived.
func (t *Tracker) Done(sessionID string, dests ...destination.Destination) <-chan struct{} {
	w := &waiter{
		sessionID: sessionID,
		dests:     dests,
		ch:        make(chan struct{}),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.satisfied(w) {
		close(w.ch)
		return w.ch
	}
	t.waiters = append(t.waiters, w)
	return w.ch
}

// Forget drops all recorded state for a session.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

func (t *Tracker) set(sessionID string, dest destination.Destination, s job.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	states, ok := t.sessions[sessionID]
	if !ok {
		states = make(map[destination.Destination]job.State)
		t.sessions[sessionID] = states
	}
	states[dest] = s

	if len(t.waiters) == 0 {
		return
	}
	remaining := t.waiters[:0]
	for _, w := range t.waiters {
		if t.satisfied(w) {
			close(w.ch)
			continue
		}
		remaining = append(remaining, w)
	}
	t.waiters = remaining
}

// satisfied reports whether every destination the waiter names is terminal.
// Callers hold t.mu.
func (t *Tracker) satisfied(w *waiter) bool {
	states := t.sessions[w.sessionID]
	for _, dest := range w.dests {
		if !states[dest].Terminal() {
			return false
		}
	}
	return len(w.dests) > 0
}
