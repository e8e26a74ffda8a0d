package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
	"github.com/theopensystemslab/sendq/job"
)

// outcome is one joined attempt result within a round.
type outcome struct {
	sub              *destination.Submission
	receipt          destination.Receipt
	err              error
	alreadySubmitted bool
	elapsed          time.Duration
}

// runRound fans out one attempt per destination, joins all of them, and
// classifies the results. Retryable failures within budget trigger the
// next round for the failed subset after a backoff delay; everything else
// reaches a terminal state. Rounds for one Job are strictly sequential, so
// no (session, destination) pair ever has two attempts in flight.
//
// recheck re-runs the existing-submission check before each attempt. It is
// false for the first round, whose check already ran synchronously in
// Queue, and true for retry rounds, where a slow earlier attempt may have
// landed downstream in the meantime.
func (d *Dispatcher) runRound(j *job.Job, round []destination.Destination, recheck bool) {
	results := make(chan outcome, len(round))

	for _, dest := range round {
		entry, ok := j.Entry(dest)
		if !ok {
			continue
		}
		attempt := j.BeginAttempt(dest)
		sub := &destination.Submission{
			ID:          id.NewAttemptID(),
			SessionID:   j.SessionID,
			Destination: dest,
			Authority:   entry.Authority,
			Attempt:     attempt,
		}
		d.exts.EmitAttemptQueued(d.baseCtx, sub)
		go d.attempt(sub, recheck, results)
	}

	// Join the whole round before classifying anything. A fast failure
	// waits for its slowest sibling; retry scheduling is per round, not
	// per attempt.
	joined := make([]outcome, 0, len(round))
	for range round {
		joined = append(joined, <-results)
	}

	var retry []destination.Destination
	maxAttempts := 0

	for _, out := range joined {
		sub := out.sub

		switch {
		case out.alreadySubmitted:
			j.MarkAlreadySubmitted(sub.Destination)
			d.exts.EmitAlreadySubmitted(d.baseCtx, sub.SessionID, sub.Destination)
			d.logger.Info("submission short-circuited on retry, destination already holds one",
				"session_id", sub.SessionID,
				"destination", string(sub.Destination),
				"attempt", sub.Attempt,
			)

		case out.err == nil:
			j.MarkSucceeded(sub.Destination)
			d.exts.EmitAttemptSucceeded(d.baseCtx, sub, out.receipt, out.elapsed)
			d.logger.Info("submission delivered",
				"session_id", sub.SessionID,
				"destination", string(sub.Destination),
				"attempt", sub.Attempt,
				"reference", out.receipt.Reference,
				"elapsed", d.clock.Now().Sub(j.CreatedAt),
			)

		default:
			j.RecordFailure(sub.Destination, out.err)
			d.exts.EmitAttemptFailed(d.baseCtx, sub, out.err)

			if !destination.IsTerminal(out.err) && sub.Attempt <= d.cfg.MaxRetries {
				j.MarkRetrying(sub.Destination)
				retry = append(retry, sub.Destination)
				if sub.Attempt > maxAttempts {
					maxAttempts = sub.Attempt
				}
				continue
			}

			d.escalateDest(j, sub, out.err)
		}
	}

	if len(retry) > 0 {
		delay := d.strategy.Delay(maxAttempts)
		for _, dest := range retry {
			if entry, ok := j.Entry(dest); ok {
				sub := &destination.Submission{
					SessionID:   j.SessionID,
					Destination: dest,
					Authority:   entry.Authority,
					Attempt:     entry.Attempts,
				}
				d.exts.EmitAttemptRetrying(d.baseCtx, sub, d.clock.Now().Add(delay))
			}
		}
		d.logger.Info("retrying failed destinations",
			"session_id", j.SessionID,
			"destinations", len(retry),
			"delay", delay,
		)

		select {
		case <-time.After(delay):
			d.runRound(j, retry, true)
			return
		case <-d.baseCtx.Done():
			d.logger.Warn("retry round abandoned, dispatcher closing",
				"session_id", j.SessionID,
				"destinations", len(retry),
			)
		}
	}

	if j.AllTerminal() {
		d.jobs.Remove(j.SessionID)
	}
}

// attempt runs the existing-submission check (on retry rounds) and one
// Submit call through the middleware chain, reporting a single outcome.
func (d *Dispatcher) attempt(sub *destination.Submission, recheck bool, results chan<- outcome) {
	start := d.clock.Now()
	handler, failOpen, err := d.registry.Get(sub.Destination)
	if err != nil {
		results <- outcome{sub: sub, err: err}
		return
	}

	if recheck {
		exists, checkErr := handler.HasExistingSubmission(d.baseCtx, sub.SessionID)
		if checkErr != nil {
			if !failOpen {
				// On a detached round there is no caller to surface the
				// check failure to; it consumes the attempt as a retryable
				// failure.
				results <- outcome{sub: sub, err: fmt.Errorf("%w: %w", sendq.ErrSubmissionCheck, checkErr)}
				return
			}
			d.logger.Warn("existing-submission check failed, proceeding fail-open",
				"session_id", sub.SessionID,
				"destination", string(sub.Destination),
				"error", checkErr,
			)
		} else if exists {
			results <- outcome{sub: sub, alreadySubmitted: true}
			return
		}
	}

	var receipt destination.Receipt
	err = d.submit(d.baseCtx, sub, func(ctx context.Context) error {
		r, submitErr := handler.Submit(ctx, sub.SessionID, sub.Authority)
		if submitErr != nil {
			return submitErr
		}
		receipt = r
		return nil
	})

	results <- outcome{
		sub:     sub,
		receipt: receipt,
		err:     err,
		elapsed: d.clock.Now().Sub(start),
	}
}

// escalateDest marks a destination terminally escalated and hands it to
// the human channel. Called at most once per (session, destination) for a
// delivery; the terminal state blocks any further attempt.
func (d *Dispatcher) escalateDest(j *job.Job, sub *destination.Submission, cause error) {
	j.MarkEscalated(sub.Destination)
	d.exts.EmitEscalated(d.baseCtx, sub, cause)

	if _, err := d.escalator.Escalate(d.baseCtx, sub, cause); err != nil {
		d.logger.Error("escalation channel write failed",
			"session_id", sub.SessionID,
			"destination", string(sub.Destination),
			"cause", cause,
			"error", err,
		)
	}

	d.logger.Error("submission escalated",
		"session_id", sub.SessionID,
		"destination", string(sub.Destination),
		"attempts", sub.Attempt,
		"error", cause,
	)
}
