// Package ext defines the extension system for sendq.
// Extensions are notified of delivery lifecycle events (attempt queued,
// succeeded, escalated, etc.) and can react to them: audit trails, status
// tracking, metrics.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/theopensystemslab/sendq/destination"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Attempt lifecycle hooks
// ──────────────────────────────────────────────────

// AttemptQueued is called when a delivery attempt is dispatched.
type AttemptQueued interface {
	OnAttemptQueued(ctx context.Context, sub *destination.Submission) error
}

// AlreadySubmitted is called when the idempotency check short-circuits a
// destination because it already holds a submission for the session.
type AlreadySubmitted interface {
	OnAlreadySubmitted(ctx context.Context, sessionID string, dest destination.Destination) error
}

// AttemptSucceeded is called when the resolver classifies an attempt as
// successful. Classification happens only once the whole round has joined,
// so this fires no earlier than the round's slowest attempt.
type AttemptSucceeded interface {
	OnAttemptSucceeded(ctx context.Context, sub *destination.Submission, receipt destination.Receipt, elapsed time.Duration) error
}

// AttemptFailed is called for every failed attempt, whether or not it will
// be retried.
type AttemptFailed interface {
	OnAttemptFailed(ctx context.Context, sub *destination.Submission, err error) error
}

// AttemptRetrying is called when a failed destination is scheduled for
// another round.
type AttemptRetrying interface {
	OnAttemptRetrying(ctx context.Context, sub *destination.Submission, nextAt time.Time) error
}

// Escalated is called when a destination's retry budget is exhausted, or
// its failure was permanent, and the human channel has been engaged.
type Escalated interface {
	OnEscalated(ctx context.Context, sub *destination.Submission, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
