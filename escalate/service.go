package escalate

import (
	"context"
	"log/slog"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
)

// Service provides high-level escalation operations over a Store.
type Service struct {
	store    Store
	notifier Notifier
	clock    sendq.Clock
	logger   *slog.Logger
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithNotifier sets the human notification channel. Defaults to a
// LogNotifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(c sendq.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an escalation service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		clock:  sendq.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	return s
}

// Escalate records a give-up for one (session, destination) pair and
// notifies the human channel. The store write is authoritative; a failed
// notification is logged and swallowed so the entry is never lost.
func (s *Service) Escalate(ctx context.Context, sub *destination.Submission, cause error) (*Entry, error) {
	now := s.clock.Now()
	entry := &Entry{
		ID:          id.NewEscalationID(),
		SessionID:   sub.SessionID,
		Destination: sub.Destination,
		Authority:   sub.Authority,
		Attempts:    sub.Attempt,
		Error:       cause.Error(),
		EscalatedAt: now,
		CreatedAt:   now,
	}

	if err := s.store.Push(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.notifier.Notify(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "escalation notification failed",
			"entry_id", entry.ID.String(),
			"session_id", entry.SessionID,
			"destination", string(entry.Destination),
			"error", err,
		)
	}
	return entry, nil
}

// Store returns the underlying escalation store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
