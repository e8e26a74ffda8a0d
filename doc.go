// Package sendq coordinates the delivery of completed application sessions
// to independent back-office destinations across an unreliable network
// boundary. It guarantees that a destination never receives a duplicate
// successful submission for a session, retries transient failures up to a
// bounded budget, and escalates exhausted failures to a human channel.
//
// Sendq is a library, not a service. Register one Handler per destination,
// build a Dispatcher, and queue sessions:
//
//	reg := destination.NewRegistry()
//	reg.Register("back-office", bops)
//	reg.Register("email-gateway", mailer)
//
//	d := dispatcher.New(reg,
//	    dispatcher.WithEscalator(escalate.NewService(store,
//	        escalate.WithNotifier(escalate.NewSlackWebhook(webhookURL)))),
//	)
//	defer d.Close(context.Background())
//
//	statuses, err := d.Queue(ctx, "sess-42", map[destination.Destination]destination.AuthorityContext{
//	    "back-office":   {Key: "southwark"},
//	    "email-gateway": {Key: "southwark"},
//	})
//
// Queue returns synchronously with a per-destination "queued" or
// "already-submitted" status; delivery outcomes surface asynchronously
// through the audit sink, the status tracker, and the escalation channel.
//
// # Architecture
//
// Each subsystem lives in its own package: destination (handler contract
// and registry), job (in-flight session bookkeeping), dispatcher (fan-out
// and the retry resolver), middleware (submit-path cross-cutting logic),
// ext (lifecycle hooks), audit (attempt trail), escalate (human channel),
// status (terminal-state queries), and backoff (retry delay strategies).
package sendq
