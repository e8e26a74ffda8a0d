package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/backoff"
	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/escalate"
	"github.com/theopensystemslab/sendq/ext"
	"github.com/theopensystemslab/sendq/job"
	"github.com/theopensystemslab/sendq/middleware"
)

// QueueStatus is the synchronous per-destination acknowledgement returned
// by Queue.
type QueueStatus string

const (
	// StatusQueued means a concurrent Submit attempt was started.
	StatusQueued QueueStatus = "queued"
	// StatusAlreadySubmitted means the idempotency check found an existing
	// submission and no attempt was started.
	StatusAlreadySubmitted QueueStatus = "already-submitted"
)

// Escalator hands a given-up (session, destination) pair to the human
// channel. Implemented by *escalate.Service.
type Escalator interface {
	Escalate(ctx context.Context, sub *destination.Submission, cause error) (*escalate.Entry, error)
}

// Compile-time interface checks.
var (
	_ Escalator         = (*escalate.Service)(nil)
	_ escalate.Requeuer = (*Dispatcher)(nil)
)

// Dispatcher delivers sessions to destinations with bounded retries and
// human escalation. Construct with New; the zero value is not usable.
type Dispatcher struct {
	cfg       sendq.Config
	registry  *destination.Registry
	jobs      *job.Registry
	exts      *ext.Registry
	escalator Escalator
	strategy  backoff.Strategy
	clock     sendq.Clock
	logger    *slog.Logger
	submit    middleware.Middleware

	pendingExts []ext.Extension
	userMws     []middleware.Middleware

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates a Dispatcher over the given destination registry.
func New(registry *destination.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      sendq.DefaultConfig(),
		registry: registry,
		jobs:     job.NewRegistry(),
		clock:    sendq.SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.strategy == nil {
		d.strategy = backoff.NewExponentialWithJitter(d.cfg.RetryDelay, d.cfg.RetryDelayMax)
	}
	if d.escalator == nil {
		d.escalator = escalate.NewService(escalate.NewMemoryStore(),
			escalate.WithLogger(d.logger))
	}

	d.exts = ext.NewRegistry(d.logger)
	for _, e := range d.pendingExts {
		d.exts.Register(e)
	}
	d.pendingExts = nil

	// Recover outermost so a panicking user middleware is also contained;
	// Timeout bounds the handler and everything inside it.
	mws := []middleware.Middleware{
		middleware.Recover(d.logger),
		middleware.Timeout(d.cfg.SubmitTimeout),
	}
	mws = append(mws, d.userMws...)
	d.submit = middleware.Chain(mws...)
	d.userMws = nil

	d.baseCtx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Extensions returns the lifecycle extension registry, mainly so tests
// and callers can inspect what is wired.
func (d *Dispatcher) Extensions() *ext.Registry { return d.exts }

// InFlight returns the number of sessions with a live delivery.
func (d *Dispatcher) InFlight() int { return d.jobs.Len() }

// Job returns a point-in-time copy of the per-destination records for a
// live delivery.
func (d *Dispatcher) Job(sessionID string) (map[destination.Destination]job.Entry, error) {
	j, err := d.jobs.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return j.Entries(), nil
}

// Queue dispatches a session to the given destinations and acknowledges
// synchronously. Per destination the status is either StatusQueued (a
// concurrent attempt was started) or StatusAlreadySubmitted (idempotency
// short-circuit). Delivery outcome is not part of the return value; it is
// observed through extensions and the escalation channel.
//
// The whole request is rejected, with no Job created, when the dispatcher
// is closed, no destinations are given, any destination is unregistered,
// or a delivery for the session is already in flight.
//
// A failed existing-submission check aborts only that destination: its
// error is joined into the returned error, the other destinations proceed,
// and the returned map still reports their statuses.
func (d *Dispatcher) Queue(ctx context.Context, sessionID string, destinations map[destination.Destination]destination.AuthorityContext) (map[destination.Destination]QueueStatus, error) {
	if d.closed.Load() {
		return nil, sendq.ErrClosed
	}
	if len(destinations) == 0 {
		return nil, sendq.ErrNoDestinations
	}

	// Validate every destination before creating any state.
	var unknown error
	for dest := range destinations {
		if _, _, err := d.registry.Get(dest); err != nil {
			unknown = errors.Join(unknown, err)
		}
	}
	if unknown != nil {
		return nil, unknown
	}

	j := job.New(sessionID, destinations, d.clock.Now())
	if err := d.jobs.Create(j); err != nil {
		return nil, err
	}

	statuses := make(map[destination.Destination]QueueStatus, len(destinations))
	round := make([]destination.Destination, 0, len(destinations))
	var checkErrs error

	for dest := range destinations {
		handler, failOpen, _ := d.registry.Get(dest)

		exists, err := handler.HasExistingSubmission(ctx, sessionID)
		if err != nil {
			if !failOpen {
				j.Abort(dest)
				checkErrs = errors.Join(checkErrs, fmt.Errorf("%w: %s: %w", sendq.ErrSubmissionCheck, dest, err))
				continue
			}
			d.logger.WarnContext(ctx, "existing-submission check failed, proceeding fail-open",
				"session_id", sessionID,
				"destination", string(dest),
				"error", err,
			)
			exists = false
		}

		if exists {
			j.MarkAlreadySubmitted(dest)
			statuses[dest] = StatusAlreadySubmitted
			d.exts.EmitAlreadySubmitted(ctx, sessionID, dest)
			d.logger.InfoContext(ctx, "submission short-circuited, destination already holds one",
				"session_id", sessionID,
				"destination", string(dest),
			)
			continue
		}

		statuses[dest] = StatusQueued
		round = append(round, dest)
	}

	if len(round) == 0 {
		// Nothing to attempt. The Job is either empty (every check failed)
		// or fully short-circuited; either way delivery is over.
		d.jobs.Remove(sessionID)
		return statuses, checkErrs
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runRound(j, round, false)
	}()

	return statuses, checkErrs
}

// Requeue re-dispatches a session, typically to replay an escalated
// destination with a fresh retry budget. It satisfies escalate.Requeuer.
func (d *Dispatcher) Requeue(ctx context.Context, sessionID string, destinations map[destination.Destination]destination.AuthorityContext) error {
	_, err := d.Queue(ctx, sessionID, destinations)
	return err
}

// Close stops accepting new sessions and waits for detached rounds to
// drain. If ctx expires first, in-flight attempts are cancelled and Close
// waits for them to unwind. Safe to call more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.logger.Info("dispatcher closing", "in_flight", d.jobs.Len())

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher closed gracefully")
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timed out, cancelling in-flight attempts")
		d.cancel()
		<-done
	}

	d.cancel()
	d.exts.EmitShutdown(context.WithoutCancel(ctx))
	return nil
}
