package sendq

import "errors"

var (
	// Request errors.
	ErrNoDestinations     = errors.New("sendq: no destinations requested")
	ErrUnknownDestination = errors.New("sendq: unknown destination")
	ErrDuplicateJob       = errors.New("sendq: dispatch already in flight for session")

	// Registry errors.
	ErrJobNotFound = errors.New("sendq: job not found")

	// Dispatch errors.
	ErrSubmissionCheck = errors.New("sendq: existing-submission check failed")
	ErrClosed          = errors.New("sendq: dispatcher closed")

	// Escalation errors.
	ErrEscalationNotFound = errors.New("sendq: escalation entry not found")
)
