package middleware

import (
	"context"
	"time"

	"github.com/theopensystemslab/sendq/destination"
)

// Timeout returns middleware that enforces a per-attempt deadline. When the
// deadline is exceeded the context is cancelled and the handler should
// return context.DeadlineExceeded, which the resolver treats as a retryable
// failure. A non-positive d disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *destination.Submission, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
