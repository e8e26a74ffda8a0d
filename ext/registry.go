package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/theopensystemslab/sendq/destination"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type attemptQueuedEntry struct {
	name string
	hook AttemptQueued
}

type alreadySubmittedEntry struct {
	name string
	hook AlreadySubmitted
}

type attemptSucceededEntry struct {
	name string
	hook AttemptSucceeded
}

type attemptFailedEntry struct {
	name string
	hook AttemptFailed
}

type attemptRetryingEntry struct {
	name string
	hook AttemptRetrying
}

type escalatedEntry struct {
	name string
	hook Escalated
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	attemptQueued    []attemptQueuedEntry
	alreadySubmitted []alreadySubmittedEntry
	attemptSucceeded []attemptSucceededEntry
	attemptFailed    []attemptFailedEntry
	attemptRetrying  []attemptRetryingEntry
	escalated        []escalatedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(AttemptQueued); ok {
		r.attemptQueued = append(r.attemptQueued, attemptQueuedEntry{name, h})
	}
	if h, ok := e.(AlreadySubmitted); ok {
		r.alreadySubmitted = append(r.alreadySubmitted, alreadySubmittedEntry{name, h})
	}
	if h, ok := e.(AttemptSucceeded); ok {
		r.attemptSucceeded = append(r.attemptSucceeded, attemptSucceededEntry{name, h})
	}
	if h, ok := e.(AttemptFailed); ok {
		r.attemptFailed = append(r.attemptFailed, attemptFailedEntry{name, h})
	}
	if h, ok := e.(AttemptRetrying); ok {
		r.attemptRetrying = append(r.attemptRetrying, attemptRetryingEntry{name, h})
	}
	if h, ok := e.(Escalated); ok {
		r.escalated = append(r.escalated, escalatedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitAttemptQueued notifies all extensions that implement AttemptQueued.
func (r *Registry) EmitAttemptQueued(ctx context.Context, sub *destination.Submission) {
	for _, e := range r.attemptQueued {
		if err := e.hook.OnAttemptQueued(ctx, sub); err != nil {
			r.logHookError("OnAttemptQueued", e.name, err)
		}
	}
}

// EmitAlreadySubmitted notifies all extensions that implement AlreadySubmitted.
func (r *Registry) EmitAlreadySubmitted(ctx context.Context, sessionID string, dest destination.Destination) {
	for _, e := range r.alreadySubmitted {
		if err := e.hook.OnAlreadySubmitted(ctx, sessionID, dest); err != nil {
			r.logHookError("OnAlreadySubmitted", e.name, err)
		}
	}
}

// EmitAttemptSucceeded notifies all extensions that implement AttemptSucceeded.
func (r *Registry) EmitAttemptSucceeded(ctx context.Context, sub *destination.Submission, receipt destination.Receipt, elapsed time.Duration) {
	for _, e := range r.attemptSucceeded {
		if err := e.hook.OnAttemptSucceeded(ctx, sub, receipt, elapsed); err != nil {
			r.logHookError("OnAttemptSucceeded", e.name, err)
		}
	}
}

// EmitAttemptFailed notifies all extensions that implement AttemptFailed.
func (r *Registry) EmitAttemptFailed(ctx context.Context, sub *destination.Submission, attemptErr error) {
	for _, e := range r.attemptFailed {
		if err := e.hook.OnAttemptFailed(ctx, sub, attemptErr); err != nil {
			r.logHookError("OnAttemptFailed", e.name, err)
		}
	}
}

// EmitAttemptRetrying notifies all extensions that implement AttemptRetrying.
func (r *Registry) EmitAttemptRetrying(ctx context.Context, sub *destination.Submission, nextAt time.Time) {
	for _, e := range r.attemptRetrying {
		if err := e.hook.OnAttemptRetrying(ctx, sub, nextAt); err != nil {
			r.logHookError("OnAttemptRetrying", e.name, err)
		}
	}
}

// EmitEscalated notifies all extensions that implement Escalated.
func (r *Registry) EmitEscalated(ctx context.Context, sub *destination.Submission, cause error) {
	for _, e := range r.escalated {
		if err := e.hook.OnEscalated(ctx, sub, cause); err != nil {
			r.logHookError("OnEscalated", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure. Hook errors never propagate into the
// delivery path; a broken extension must not affect dispatch.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}
