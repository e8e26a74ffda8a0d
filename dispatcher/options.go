package dispatcher

import (
	"log/slog"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/backoff"
	"github.com/theopensystemslab/sendq/ext"
	"github.com/theopensystemslab/sendq/middleware"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig replaces the default configuration.
func WithConfig(cfg sendq.Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides the time source.
func WithClock(c sendq.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithBackoff sets the delay strategy between retry rounds.
func WithBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) { d.strategy = s }
}

// WithEscalator sets the human escalation channel. Defaults to an
// in-memory store with a log notifier.
func WithEscalator(e Escalator) Option {
	return func(d *Dispatcher) { d.escalator = e }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(d *Dispatcher) { d.pendingExts = append(d.pendingExts, e) }
}

// WithMiddleware appends middleware to the submit path. User middleware
// runs inside the built-in Recover and Timeout layers, closest to the
// handler last.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) { d.userMws = append(d.userMws, mws...) }
}
