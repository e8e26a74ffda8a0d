// Package audit provides the append-only record of delivery attempts.
//
// Every lifecycle event for a (session, destination) pair, from queued
// through succeeded, failed, retrying, or escalated, becomes one
// immutable [Event] in a [Store]. The dispatcher never reads the trail;
// it exists so operators can reconstruct what happened to a session after
// the fact, since Queue returns before delivery outcomes are known.
//
// Wire the trail in by registering [Extension] with the dispatcher:
//
//	store := audit.NewMemoryStore() // or postgres.New(ctx, dsn)
//	d, _ := dispatcher.New(reg, dispatcher.WithExtension(audit.NewExtension(store)))
package audit

import (
	"context"
	"time"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
)

// Outcome classifies what an audit event records.
type Outcome string

const (
	OutcomeQueued           Outcome = "queued"
	OutcomeAlreadySubmitted Outcome = "already-submitted"
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeFailed           Outcome = "failed"
	OutcomeRetrying         Outcome = "retrying"
	OutcomeEscalated        Outcome = "escalated"
)

// Event is one immutable audit record.
type Event struct {
	ID          id.ID                   `json:"id"`
	SessionID   string                  `json:"session_id"`
	Destination destination.Destination `json:"destination"`
	Outcome     Outcome                 `json:"outcome"`
	// Attempt is the 1-indexed attempt number the event belongs to.
	// Zero for events not tied to an attempt (already-submitted).
	Attempt int `json:"attempt,omitempty"`
	// Reference is the destination's receipt reference on success.
	Reference string `json:"reference,omitempty"`
	// Error carries the failure description for failed, retrying, and
	// escalated outcomes.
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ListOpts controls filtering for audit queries.
type ListOpts struct {
	// SessionID filters by session. Empty means all sessions.
	SessionID string
	// Destination filters by destination. Empty means all destinations.
	Destination destination.Destination
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
}

// Store is the persistence contract for the audit trail.
type Store interface {
	// Append persists one event. Events are immutable once appended.
	Append(ctx context.Context, e *Event) error

	// List returns events matching opts, oldest first.
	List(ctx context.Context, opts ListOpts) ([]*Event, error)

	// Count returns the number of events matching opts.
	Count(ctx context.Context, opts ListOpts) (int64, error)
}
