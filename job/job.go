// Package job tracks one in-flight delivery per session: which destinations
// it targets, how many attempts each has consumed, and which have reached a
// terminal state.
//
// A [Job] is created when a session is first queued and lives across every
// retry round, so the attempt count for each destination is threaded through
// rather than rediscovered. The [Registry] enforces the core invariant that
// at most one Job exists per session identifier at any instant; the Job is
// removed only once every destination is terminal.
package job

import (
	"sync"
	"time"

	"github.com/theopensystemslab/sendq/destination"
)

// State is the per-destination delivery state within a Job.
type State string

const (
	// StatePending means the destination is queued but no attempt has started.
	StatePending State = "pending"
	// StateInFlight means a Submit attempt is currently running.
	StateInFlight State = "in-flight"
	// StateSucceeded means a Submit attempt completed successfully. Terminal.
	StateSucceeded State = "succeeded"
	// StateFailed means the latest attempt failed; a retry decision is pending.
	StateFailed State = "failed"
	// StateRetrying means a failed destination is waiting for its next round.
	StateRetrying State = "retrying"
	// StateAlreadySubmitted means the idempotency check short-circuited the
	// attempt because the destination already holds a submission. Terminal.
	StateAlreadySubmitted State = "already-submitted"
	// StateEscalated means the retry budget is exhausted (or the failure was
	// permanent) and a human has been notified. Terminal.
	StateEscalated State = "escalated"
)

// Terminal reports whether s is an end state for a destination.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateAlreadySubmitted, StateEscalated:
		return true
	default:
		return false
	}
}

// Entry is the per-destination record inside a Job.
type Entry struct {
	// Authority routes the submission within the destination. Fixed at
	// Job creation.
	Authority destination.AuthorityContext

	// Attempts counts Submit dispatches for this destination, including
	// the initial one.
	Attempts int

	// State is the destination's current delivery state.
	State State

	// LastError holds the most recent attempt failure, if any.
	LastError string
}

// Job is the unit of work tracking one session's delivery across all
// requested destinations. Its methods are safe for concurrent use; retry
// rounds for one Job are sequential by construction, but readers may
// inspect a Job while a round is running.
type Job struct {
	// SessionID is the owning key. Immutable.
	SessionID string

	// CreatedAt is set once at Job creation and used to report elapsed
	// delivery time. Never mutated.
	CreatedAt time.Time

	mu      sync.Mutex
	entries map[destination.Destination]*Entry
}

// New creates a Job for the given session targeting the given destinations,
// all in StatePending with zero attempts.
func New(sessionID string, destinations map[destination.Destination]destination.AuthorityContext, now time.Time) *Job {
	entries := make(map[destination.Destination]*Entry, len(destinations))
	for dest, authority := range destinations {
		entries[dest] = &Entry{
			Authority: authority,
			State:     StatePending,
		}
	}
	return &Job{
		SessionID: sessionID,
		CreatedAt: now,
		entries:   entries,
	}
}

// Entry returns a copy of the record for dest. The second return is false
// if the destination is not part of this Job.
func (j *Job) Entry(dest destination.Destination) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[dest]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a copy of all per-destination records.
func (j *Job) Entries() map[destination.Destination]Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[destination.Destination]Entry, len(j.entries))
	for dest, e := range j.entries {
		out[dest] = *e
	}
	return out
}

// BeginAttempt marks dest in-flight and increments its attempt count,
// returning the new count. The returned value is the 1-indexed attempt
// number carried on the Submission.
func (j *Job) BeginAttempt(dest destination.Destination) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := j.entries[dest]
	e.Attempts++
	e.State = StateInFlight
	return e.Attempts
}

// RecordFailure marks dest failed and captures the attempt error.
func (j *Job) RecordFailure(dest destination.Destination, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := j.entries[dest]
	e.State = StateFailed
	e.LastError = err.Error()
}

// MarkRetrying marks a failed destination as waiting for its next round.
func (j *Job) MarkRetrying(dest destination.Destination) {
	j.setState(dest, StateRetrying)
}

// MarkSucceeded marks dest terminally succeeded.
func (j *Job) MarkSucceeded(dest destination.Destination) {
	j.setState(dest, StateSucceeded)
}

// MarkAlreadySubmitted marks dest terminally short-circuited by the
// idempotency check.
func (j *Job) MarkAlreadySubmitted(dest destination.Destination) {
	j.setState(dest, StateAlreadySubmitted)
}

// MarkEscalated marks dest terminally escalated.
func (j *Job) MarkEscalated(dest destination.Destination) {
	j.setState(dest, StateEscalated)
}

func (j *Job) setState(dest destination.Destination, s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[dest].State = s
}

// Abort removes dest from the Job entirely. Used when the synchronous
// existing-submission check fails and dispatch for that destination must
// not proceed.
func (j *Job) Abort(dest destination.Destination) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, dest)
}

// Empty reports whether the Job has no destinations left.
func (j *Job) Empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries) == 0
}

// AllTerminal reports whether every remaining destination has reached an
// end state. A Job with no destinations is vacuously terminal.
func (j *Job) AllTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range j.entries {
		if !e.State.Terminal() {
			return false
		}
	}
	return true
}
