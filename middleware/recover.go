package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/theopensystemslab/sendq/destination"
)

// Recover returns middleware that recovers from panics in a destination
// handler. Panics are converted to retryable errors and logged with a stack
// trace, so one misbehaving handler cannot take down sibling attempts.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, sub *destination.Submission, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("destination handler panicked",
					slog.String("session_id", sub.SessionID),
					slog.String("destination", string(sub.Destination)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in destination %s: %v", sub.Destination, r)
			}
		}()
		return next(ctx)
	}
}
