package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/backoff"
	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/dispatcher"
	"github.com/theopensystemslab/sendq/escalate"
	"github.com/theopensystemslab/sendq/ext"
)

// ──────────────────────────────────────────────────
// Test doubles
// ──────────────────────────────────────────────────

type stubHandler struct {
	submits atomic.Int32
	checks  atomic.Int32

	submitFn func(call int32) (destination.Receipt, error)
	checkFn  func(call int32) (bool, error)
}

func (s *stubHandler) Submit(ctx context.Context, _ string, _ destination.AuthorityContext) (destination.Receipt, error) {
	call := s.submits.Add(1)
	if s.submitFn == nil {
		return destination.Receipt{Reference: "ok"}, nil
	}
	return s.submitFn(call)
}

func (s *stubHandler) HasExistingSubmission(ctx context.Context, _ string) (bool, error) {
	call := s.checks.Add(1)
	if s.checkFn == nil {
		return false, nil
	}
	return s.checkFn(call)
}

// recorder is an extension capturing lifecycle events per destination.
type recorder struct {
	mu        sync.Mutex
	succeeded map[destination.Destination]int
	escalated map[destination.Destination]int
	already   map[destination.Destination]int
}

func newRecorder() *recorder {
	return &recorder{
		succeeded: map[destination.Destination]int{},
		escalated: map[destination.Destination]int{},
		already:   map[destination.Destination]int{},
	}
}

func (r *recorder) Name() string { return "test-recorder" }

func (r *recorder) OnAttemptSucceeded(_ context.Context, sub *destination.Submission, _ destination.Receipt, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded[sub.Destination]++
	return nil
}

func (r *recorder) OnEscalated(_ context.Context, sub *destination.Submission, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalated[sub.Destination]++
	return nil
}

func (r *recorder) OnAlreadySubmitted(_ context.Context, _ string, dest destination.Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.already[dest]++
	return nil
}

func (r *recorder) counts(dest destination.Destination) (succeeded, escalated, already int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded[dest], r.escalated[dest], r.already[dest]
}

var (
	_ ext.Extension        = (*recorder)(nil)
	_ ext.AttemptSucceeded = (*recorder)(nil)
	_ ext.Escalated        = (*recorder)(nil)
	_ ext.AlreadySubmitted = (*recorder)(nil)
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fastConfig() sendq.Config {
	cfg := sendq.DefaultConfig()
	cfg.SubmitTimeout = 2 * time.Second
	return cfg
}

// newDispatcher wires a dispatcher with fast retries, a recorder, and an
// inspectable escalation store.
func newDispatcher(t *testing.T, reg *destination.Registry, opts ...dispatcher.Option) (*dispatcher.Dispatcher, *recorder, *escalate.MemoryStore) {
	t.Helper()

	rec := newRecorder()
	store := escalate.NewMemoryStore()
	svc := escalate.NewService(store, escalate.WithNotifier(quietNotifier{}))

	base := []dispatcher.Option{
		dispatcher.WithConfig(fastConfig()),
		dispatcher.WithBackoff(backoff.NewConstant(time.Millisecond)),
		dispatcher.WithEscalator(svc),
		dispatcher.WithExtension(rec),
	}
	d := dispatcher.New(reg, append(base, opts...)...)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d, rec, store
}

type quietNotifier struct{}

func (quietNotifier) Notify(context.Context, *escalate.Entry) error { return nil }

func registry(dests map[destination.Destination]destination.Handler) *destination.Registry {
	reg := destination.NewRegistry()
	for name, h := range dests {
		reg.Register(name, h)
	}
	return reg
}

func auth(dests ...destination.Destination) map[destination.Destination]destination.AuthorityContext {
	out := make(map[destination.Destination]destination.AuthorityContext, len(dests))
	for _, d := range dests {
		out[d] = destination.AuthorityContext{Key: "southwark"}
	}
	return out
}

// ──────────────────────────────────────────────────
// Queue validation
// ──────────────────────────────────────────────────

func TestQueue_NoDestinations(t *testing.T) {
	d, _, _ := newDispatcher(t, destination.NewRegistry())

	_, err := d.Queue(context.Background(), "s1", nil)
	if !errors.Is(err, sendq.ErrNoDestinations) {
		t.Fatalf("err = %v, want ErrNoDestinations", err)
	}
}

func TestQueue_UnknownDestinationCreatesNoJob(t *testing.T) {
	reg := registry(map[destination.Destination]destination.Handler{"known": &stubHandler{}})
	d, _, _ := newDispatcher(t, reg)

	_, err := d.Queue(context.Background(), "s1", auth("known", "nonexistent-destination"))
	if !errors.Is(err, sendq.ErrUnknownDestination) {
		t.Fatalf("err = %v, want ErrUnknownDestination", err)
	}
	if d.InFlight() != 0 {
		t.Errorf("in flight = %d, want 0 (no Job on validation failure)", d.InFlight())
	}
}

func TestQueue_DuplicateSessionRejected(t *testing.T) {
	release := make(chan struct{})
	slow := &stubHandler{submitFn: func(int32) (destination.Receipt, error) {
		<-release
		return destination.Receipt{}, nil
	}}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": slow})
	d, _, _ := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("first Queue: %v", err)
	}
	_, err := d.Queue(context.Background(), "s1", auth("back-office"))
	if !errors.Is(err, sendq.ErrDuplicateJob) {
		t.Fatalf("err = %v, want ErrDuplicateJob", err)
	}
	close(release)
}

func TestQueue_AfterCloseRejected(t *testing.T) {
	d, _, _ := newDispatcher(t, destination.NewRegistry())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := d.Queue(context.Background(), "s1", auth("any"))
	if !errors.Is(err, sendq.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

// ──────────────────────────────────────────────────
// Idempotency
// ──────────────────────────────────────────────────

func TestQueue_IdempotencyShortCircuit(t *testing.T) {
	h := &stubHandler{checkFn: func(int32) (bool, error) { return true, nil }}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})
	d, rec, _ := newDispatcher(t, reg)

	statuses, err := d.Queue(context.Background(), "s1", auth("back-office"))
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if statuses["back-office"] != dispatcher.StatusAlreadySubmitted {
		t.Errorf("status = %q, want already-submitted", statuses["back-office"])
	}
	if n := h.submits.Load(); n != 0 {
		t.Errorf("Submit called %d times, want 0", n)
	}
	if _, _, already := rec.counts("back-office"); already != 1 {
		t.Errorf("already-submitted events = %d, want 1", already)
	}
	if d.InFlight() != 0 {
		t.Errorf("in flight = %d, want 0 (fully short-circuited delivery ends)", d.InFlight())
	}
}

func TestQueue_AtMostOneSuccess(t *testing.T) {
	// The first Submit lands downstream but reports a failure (timeout
	// after delivery). The retry round's recheck must see the existing
	// submission and never call Submit again.
	h := &stubHandler{}
	h.submitFn = func(int32) (destination.Receipt, error) {
		return destination.Receipt{}, errors.New("response lost")
	}
	h.checkFn = func(int32) (bool, error) {
		return h.submits.Load() >= 1, nil
	}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})
	d, rec, store := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("Queue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if n := h.submits.Load(); n != 1 {
		t.Errorf("Submit called %d times, want exactly 1", n)
	}
	succeeded, escalated, already := rec.counts("back-office")
	if succeeded != 0 || escalated != 0 || already != 1 {
		t.Errorf("events = %d succeeded / %d escalated / %d already, want 0/0/1",
			succeeded, escalated, already)
	}
	if n, _ := store.Count(context.Background(), escalate.ListOpts{}); n != 0 {
		t.Errorf("escalations = %d, want 0", n)
	}
}

// ──────────────────────────────────────────────────
// Retry and escalation
// ──────────────────────────────────────────────────

func TestQueue_RetryBoundAndSingleEscalation(t *testing.T) {
	h := &stubHandler{submitFn: func(int32) (destination.Receipt, error) {
		return destination.Receipt{}, errors.New("gateway down")
	}}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})
	d, rec, store := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("Queue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	// MaxRetries = 3: initial attempt plus three retries.
	if n := h.submits.Load(); n != 4 {
		t.Errorf("Submit called %d times, want 4", n)
	}
	if _, escalated, _ := rec.counts("back-office"); escalated != 1 {
		t.Errorf("escalation events = %d, want exactly 1", escalated)
	}

	entries, err := store.List(context.Background(), escalate.ListOpts{SessionID: "s1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("escalation entries = %d, want 1", len(entries))
	}
	if entries[0].Attempts != 4 {
		t.Errorf("escalation attempts = %d, want 4", entries[0].Attempts)
	}
	if entries[0].Error != "gateway down" {
		t.Errorf("escalation error = %q", entries[0].Error)
	}
}

func TestQueue_TerminalErrorEscalatesImmediately(t *testing.T) {
	h := &stubHandler{submitFn: func(int32) (destination.Receipt, error) {
		return destination.Receipt{}, destination.Terminal(errors.New("payload rejected"))
	}}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})
	d, rec, store := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("Queue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if n := h.submits.Load(); n != 1 {
		t.Errorf("Submit called %d times, want 1 (no retries for terminal errors)", n)
	}
	if _, escalated, _ := rec.counts("back-office"); escalated != 1 {
		t.Errorf("escalation events = %d, want 1", escalated)
	}
	if n, _ := store.Count(context.Background(), escalate.ListOpts{}); n != 1 {
		t.Errorf("escalation entries = %d, want 1", n)
	}
}

func TestQueue_FaultIsolationBetweenDestinations(t *testing.T) {
	good := &stubHandler{}
	bad := &stubHandler{submitFn: func(int32) (destination.Receipt, error) {
		return destination.Receipt{}, errors.New("down")
	}}
	reg := registry(map[destination.Destination]destination.Handler{
		"good": good,
		"bad":  bad,
	})
	d, rec, _ := newDispatcher(t, reg)

	statuses, err := d.Queue(context.Background(), "s1", auth("good", "bad"))
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if statuses["good"] != dispatcher.StatusQueued || statuses["bad"] != dispatcher.StatusQueued {
		t.Fatalf("statuses = %v, want both queued", statuses)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if succeeded, escalated, _ := rec.counts("good"); succeeded != 1 || escalated != 0 {
		t.Errorf("good: %d succeeded / %d escalated, want 1/0", succeeded, escalated)
	}
	if succeeded, escalated, _ := rec.counts("bad"); succeeded != 0 || escalated != 1 {
		t.Errorf("bad: %d succeeded / %d escalated, want 0/1", succeeded, escalated)
	}
	if n := good.submits.Load(); n != 1 {
		t.Errorf("good submitted %d times, want 1 (sibling failure must not retrigger it)", n)
	}
}

// The sess-42 walkthrough: A succeeds immediately, B fails twice and
// succeeds on its third attempt, within the budget. No escalation.
func TestQueue_EventualSuccessWithinBudget(t *testing.T) {
	a := &stubHandler{}
	b := &stubHandler{submitFn: func(call int32) (destination.Receipt, error) {
		if call <= 2 {
			return destination.Receipt{}, errors.New("transient")
		}
		return destination.Receipt{Reference: "B-77"}, nil
	}}
	reg := registry(map[destination.Destination]destination.Handler{"A": a, "B": b})
	d, rec, store := newDispatcher(t, reg)

	statuses, err := d.Queue(context.Background(), "sess-42", auth("A", "B"))
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if statuses["A"] != dispatcher.StatusQueued || statuses["B"] != dispatcher.StatusQueued {
		t.Fatalf("statuses = %v, want both queued", statuses)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if n := a.submits.Load(); n != 1 {
		t.Errorf("A submitted %d times, want 1", n)
	}
	if n := b.submits.Load(); n != 3 {
		t.Errorf("B submitted %d times, want 3", n)
	}
	if succeeded, escalated, _ := rec.counts("B"); succeeded != 1 || escalated != 0 {
		t.Errorf("B: %d succeeded / %d escalated, want 1/0", succeeded, escalated)
	}
	if n, _ := store.Count(context.Background(), escalate.ListOpts{}); n != 0 {
		t.Errorf("escalations = %d, want 0", n)
	}
}

// ──────────────────────────────────────────────────
// Round join semantics
// ──────────────────────────────────────────────────

// A fast failure must wait for its slowest sibling before its retry is
// scheduled: classification happens per round, not per attempt.
func TestRound_JoinsBeforeRetrying(t *testing.T) {
	var slowDone atomic.Int64
	var fastRetryStart atomic.Int64

	fast := &stubHandler{submitFn: func(call int32) (destination.Receipt, error) {
		if call == 1 {
			return destination.Receipt{}, errors.New("quick failure")
		}
		fastRetryStart.Store(time.Now().UnixNano())
		return destination.Receipt{}, nil
	}}
	slow := &stubHandler{submitFn: func(int32) (destination.Receipt, error) {
		time.Sleep(150 * time.Millisecond)
		slowDone.Store(time.Now().UnixNano())
		return destination.Receipt{}, nil
	}}
	reg := registry(map[destination.Destination]destination.Handler{"fast": fast, "slow": slow})
	d, _, _ := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("fast", "slow")); err != nil {
		t.Fatalf("Queue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if fastRetryStart.Load() == 0 || slowDone.Load() == 0 {
		t.Fatal("expected both the slow attempt and the fast retry to run")
	}
	if fastRetryStart.Load() < slowDone.Load() {
		t.Error("fast destination retried before the slow sibling joined")
	}
}

// ──────────────────────────────────────────────────
// Existing-submission check failures
// ──────────────────────────────────────────────────

func TestQueue_CheckFailureAbortsOnlyThatDestination(t *testing.T) {
	broken := &stubHandler{checkFn: func(int32) (bool, error) {
		return false, errors.New("status endpoint 500")
	}}
	good := &stubHandler{}
	reg := registry(map[destination.Destination]destination.Handler{
		"broken": broken,
		"good":   good,
	})
	d, rec, _ := newDispatcher(t, reg)

	statuses, err := d.Queue(context.Background(), "s1", auth("broken", "good"))
	if !errors.Is(err, sendq.ErrSubmissionCheck) {
		t.Fatalf("err = %v, want ErrSubmissionCheck", err)
	}
	if _, ok := statuses["broken"]; ok {
		t.Errorf("aborted destination must not appear in statuses, got %q", statuses["broken"])
	}
	if statuses["good"] != dispatcher.StatusQueued {
		t.Errorf("sibling status = %q, want queued", statuses["good"])
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if n := broken.submits.Load(); n != 0 {
		t.Errorf("aborted destination submitted %d times, want 0", n)
	}
	if succeeded, _, _ := rec.counts("good"); succeeded != 1 {
		t.Errorf("sibling succeeded %d times, want 1", succeeded)
	}
}

func TestQueue_FailOpenCheckProceeds(t *testing.T) {
	h := &stubHandler{checkFn: func(int32) (bool, error) {
		return false, errors.New("status endpoint 500")
	}}
	reg := destination.NewRegistry()
	reg.Register("back-office", h, destination.WithFailOpenCheck())
	d, rec, _ := newDispatcher(t, reg)

	statuses, err := d.Queue(context.Background(), "s1", auth("back-office"))
	if err != nil {
		t.Fatalf("Queue with fail-open check: %v", err)
	}
	if statuses["back-office"] != dispatcher.StatusQueued {
		t.Errorf("status = %q, want queued", statuses["back-office"])
	}

	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	if n := h.submits.Load(); n != 1 {
		t.Errorf("Submit called %d times, want 1", n)
	}
	if succeeded, _, _ := rec.counts("back-office"); succeeded != 1 {
		t.Errorf("succeeded events = %d, want 1", succeeded)
	}
}

// ──────────────────────────────────────────────────
// Replay and shutdown
// ──────────────────────────────────────────────────

func TestReplay_RedispatchesEscalatedDestination(t *testing.T) {
	h := &stubHandler{submitFn: func(call int32) (destination.Receipt, error) {
		if call <= 4 {
			return destination.Receipt{}, errors.New("outage")
		}
		return destination.Receipt{Reference: "late"}, nil
	}}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})

	store := escalate.NewMemoryStore()
	svc := escalate.NewService(store, escalate.WithNotifier(quietNotifier{}))
	rec := newRecorder()
	d := dispatcher.New(reg,
		dispatcher.WithConfig(fastConfig()),
		dispatcher.WithBackoff(backoff.NewConstant(time.Millisecond)),
		dispatcher.WithEscalator(svc),
		dispatcher.WithExtension(rec),
	)
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "delivery never finished")

	entries, err := store.List(context.Background(), escalate.ListOpts{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("escalation entries = %d (err %v), want 1", len(entries), err)
	}

	if _, err := svc.Replay(context.Background(), d, entries[0].ID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return d.InFlight() == 0 }, "replay never finished")

	if succeeded, _, _ := rec.counts("back-office"); succeeded != 1 {
		t.Errorf("succeeded events after replay = %d, want 1", succeeded)
	}
	replayed, err := store.Get(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if replayed.ReplayedAt == nil {
		t.Error("entry not marked replayed")
	}
}

// blockingHandler blocks in Submit until its context is cancelled.
type blockingHandler struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingHandler) Submit(ctx context.Context, _ string, _ destination.AuthorityContext) (destination.Receipt, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return destination.Receipt{}, ctx.Err()
}

func (b *blockingHandler) HasExistingSubmission(context.Context, string) (bool, error) {
	return false, nil
}

func TestClose_CancelsInFlightAttempts(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{})}
	reg := registry(map[destination.Destination]destination.Handler{"back-office": h})
	d, _, _ := newDispatcher(t, reg)

	if _, err := d.Queue(context.Background(), "s1", auth("back-office")); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	<-h.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	closed := make(chan error, 1)
	go func() { closed <- d.Close(ctx) }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return after cancelling in-flight attempts")
	}
}
