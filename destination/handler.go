package destination

import (
	"context"
	"errors"
)

// Handler is the capability contract implemented once per destination.
// Implementations are pure boundary adapters: they build the
// destination-specific payload and make the network call, nothing more.
type Handler interface {
	// Submit delivers the session to the destination. It may take seconds
	// to minutes; the dispatcher never blocks a caller on its completion.
	// Implementations must honour ctx cancellation.
	Submit(ctx context.Context, sessionID string, authority AuthorityContext) (Receipt, error)

	// HasExistingSubmission reports whether this destination already holds
	// a successful submission for the session. It is the dispatcher's
	// primary defence against duplicate downstream applications, so a
	// lookup failure must be returned as an error, never as false.
	HasExistingSubmission(ctx context.Context, sessionID string) (bool, error)
}

// terminalError marks a submission failure as permanent.
type terminalError struct {
	err error
}

func (t *terminalError) Error() string { return t.err.Error() }

func (t *terminalError) Unwrap() error { return t.err }

// Terminal wraps err so the dispatcher escalates the destination
// immediately instead of retrying. Wrapping nil returns nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether any error in err's chain was marked with
// Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
