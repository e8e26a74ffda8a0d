package audit

import (
	"context"
	"time"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/ext"
	"github.com/theopensystemslab/sendq/id"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.AttemptQueued    = (*Extension)(nil)
	_ ext.AlreadySubmitted = (*Extension)(nil)
	_ ext.AttemptSucceeded = (*Extension)(nil)
	_ ext.AttemptFailed    = (*Extension)(nil)
	_ ext.AttemptRetrying  = (*Extension)(nil)
	_ ext.Escalated        = (*Extension)(nil)
)

// Extension bridges dispatcher lifecycle events to the audit Store.
// Append failures are returned to the extension registry, which logs them;
// a broken audit backend never affects delivery.
type Extension struct {
	store Store
	clock clock
}

// clock is the minimal time source the extension needs.
type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ExtensionOption configures the Extension.
type ExtensionOption func(*Extension)

// WithClock overrides the time source for event timestamps.
func WithClock(c clock) ExtensionOption {
	return func(e *Extension) { e.clock = c }
}

// NewExtension creates an audit extension writing to store.
func NewExtension(store Store, opts ...ExtensionOption) *Extension {
	e := &Extension{store: store, clock: systemClock{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-trail" }

// OnAttemptQueued implements ext.AttemptQueued.
func (e *Extension) OnAttemptQueued(ctx context.Context, sub *destination.Submission) error {
	return e.store.Append(ctx, e.event(sub, OutcomeQueued))
}

// OnAlreadySubmitted implements ext.AlreadySubmitted.
func (e *Extension) OnAlreadySubmitted(ctx context.Context, sessionID string, dest destination.Destination) error {
	return e.store.Append(ctx, &Event{
		ID:          id.NewAuditID(),
		SessionID:   sessionID,
		Destination: dest,
		Outcome:     OutcomeAlreadySubmitted,
		OccurredAt:  e.clock.Now(),
	})
}

// OnAttemptSucceeded implements ext.AttemptSucceeded.
func (e *Extension) OnAttemptSucceeded(ctx context.Context, sub *destination.Submission, receipt destination.Receipt, _ time.Duration) error {
	evt := e.event(sub, OutcomeSucceeded)
	evt.Reference = receipt.Reference
	return e.store.Append(ctx, evt)
}

// OnAttemptFailed implements ext.AttemptFailed.
func (e *Extension) OnAttemptFailed(ctx context.Context, sub *destination.Submission, attemptErr error) error {
	evt := e.event(sub, OutcomeFailed)
	evt.Error = attemptErr.Error()
	return e.store.Append(ctx, evt)
}

// OnAttemptRetrying implements ext.AttemptRetrying.
func (e *Extension) OnAttemptRetrying(ctx context.Context, sub *destination.Submission, _ time.Time) error {
	return e.store.Append(ctx, e.event(sub, OutcomeRetrying))
}

// OnEscalated implements ext.Escalated.
func (e *Extension) OnEscalated(ctx context.Context, sub *destination.Submission, cause error) error {
	evt := e.event(sub, OutcomeEscalated)
	evt.Error = cause.Error()
	return e.store.Append(ctx, evt)
}

func (e *Extension) event(sub *destination.Submission, outcome Outcome) *Event {
	return &Event{
		ID:          id.NewAuditID(),
		SessionID:   sub.SessionID,
		Destination: sub.Destination,
		Outcome:     outcome,
		Attempt:     sub.Attempt,
		OccurredAt:  e.clock.Now(),
	}
}
