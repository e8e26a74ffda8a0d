// Package dispatcher is the entry point for delivering a session to its
// destinations.
//
// A [Dispatcher] owns a destination registry, a job registry tracking one
// in-flight delivery per session, and an escalation channel for deliveries
// it gives up on. [Dispatcher.Queue] acknowledges synchronously with a
// per-destination status and runs the actual Submit attempts detached:
// outcome is observed through extensions (audit trail, status tracker) or
// the escalation store, never through the Queue return value.
//
// # Delivery rounds
//
// Each session's delivery proceeds in rounds. A round fans out one
// concurrent attempt per non-terminal destination, joins all of them, then
// classifies: successes and idempotency short-circuits become terminal,
// retryable failures within budget are scheduled for the next round after
// a backoff delay, and everything else escalates. Rounds for one session
// are strictly sequential, so a (session, destination) pair never has two
// attempts in flight.
//
// # Usage
//
//	reg := destination.NewRegistry()
//	reg.Register("back-office", boHandler)
//	reg.Register("email-gateway", emailHandler)
//
//	d := dispatcher.New(reg,
//		dispatcher.WithEscalator(escSvc),
//		dispatcher.WithExtension(audit.NewExtension(auditStore)),
//	)
//	defer d.Close(context.Background())
//
//	statuses, err := d.Queue(ctx, "sess-42", map[destination.Destination]destination.AuthorityContext{
//		"back-office":   {Key: "southwark"},
//		"email-gateway": {Key: "southwark"},
//	})
package dispatcher
