package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/theopensystemslab/sendq/destination"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, sub *destination.Submission, next Handler) error {
		logger.Info("submission attempt started",
			slog.String("session_id", sub.SessionID),
			slog.String("destination", string(sub.Destination)),
			slog.Int("attempt", sub.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("submission attempt failed",
				slog.String("session_id", sub.SessionID),
				slog.String("destination", string(sub.Destination)),
				slog.Int("attempt", sub.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("submission attempt completed",
				slog.String("session_id", sub.SessionID),
				slog.String("destination", string(sub.Destination)),
				slog.Int("attempt", sub.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
