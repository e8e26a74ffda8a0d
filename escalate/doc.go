// Package escalate provides the human escalation channel for submissions
// that have exhausted their retry budget or failed permanently.
//
// When the dispatcher gives up on a (session, destination) pair it calls
// [Service.Escalate] to record an [Entry] and notify operators. The entry
// preserves the session identity, authority context, attempt count, and
// final error message so a human can diagnose and resubmit.
//
// # Entry
//
// An [Entry] captures:
//   - SessionID / Destination / Authority: the delivery that gave up
//   - Attempts: how many dispatches were made before escalating
//   - Error: the final error message
//   - EscalatedAt: when the dispatcher gave up
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
// [Service] wraps the escalation store with high-level operations:
//
//	svc := escalate.NewService(store,
//		escalate.WithNotifier(escalate.NewSlackWebhook(webhookURL)))
//
//	// Escalate is called automatically by the dispatcher on give-up.
//	svc.Escalate(ctx, sub, err)
//
//	// Replay re-dispatches the original session to the failed destination.
//	svc.Replay(ctx, entryID)
//
// Notification is best-effort. A failed Slack post never loses the entry;
// the store write is the source of truth.
package escalate
