// Package destination defines the boundary contract between the dispatcher
// and the back-office systems a session is delivered to.
//
// A [Destination] is an enumerated capability name ("back-office",
// "email-gateway", ...) with exactly one [Handler] implementation, registered
// at startup in a [Registry]. The dispatcher treats all handlers
// polymorphically through the Submit / HasExistingSubmission pair and never
// interprets the [AuthorityContext] it routes through to them.
//
// Handlers decide whether a failure is worth retrying. By default every
// error is retryable; wrapping with [Terminal] marks a failure (for example
// a malformed payload rejection) as permanent so the dispatcher escalates
// immediately instead of burning the retry budget.
package destination

import (
	"github.com/theopensystemslab/sendq/id"
)

// Destination is the name of a downstream delivery channel. The set of
// destinations is fixed at startup via Registry registration.
type Destination string

// AuthorityContext routes a submission to the downstream tenant or
// organisation that should receive it. The dispatcher passes it through
// opaquely from caller to handler.
type AuthorityContext struct {
	// Key identifies the receiving tenant, e.g. a local-authority slug.
	Key string
}

// Receipt is the opaque success value a handler returns for a completed
// submission.
type Receipt struct {
	// Reference is the destination's own identifier for the received
	// submission, if it issues one.
	Reference string
}

// Submission describes one delivery attempt for one (session, destination)
// pair. It is the unit middleware and lifecycle hooks operate on.
type Submission struct {
	// ID uniquely identifies this attempt.
	ID id.ID

	// SessionID is the opaque identifier of the application being delivered.
	SessionID string

	// Destination is the channel this attempt targets.
	Destination Destination

	// Authority routes the submission within the destination.
	Authority AuthorityContext

	// Attempt is the 1-indexed dispatch count for this (session,
	// destination) pair. Attempt 1 is the initial dispatch; anything above
	// is a retry.
	Attempt int
}
