package escalate

import (
	"context"
	"log/slog"
)

// Notifier delivers an escalation to the human channel. Implementations
// should be fast and tolerate repeated calls; the service treats failures
// as best-effort.
type Notifier interface {
	Notify(ctx context.Context, entry *Entry) error
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes escalations to a slog.Logger at Error level. It is
// the default notifier and a sensible fallback when no webhook is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to logger, or slog.Default()
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, entry *Entry) error {
	n.logger.ErrorContext(ctx, "submission escalated to human operator",
		"entry_id", entry.ID.String(),
		"session_id", entry.SessionID,
		"destination", string(entry.Destination),
		"authority", entry.Authority.Key,
		"attempts", entry.Attempts,
		"error", entry.Error,
	)
	return nil
}
