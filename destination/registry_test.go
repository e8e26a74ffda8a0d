package destination_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/destination"
)

type nopHandler struct{}

func (nopHandler) Submit(_ context.Context, _ string, _ destination.AuthorityContext) (destination.Receipt, error) {
	return destination.Receipt{}, nil
}

func (nopHandler) HasExistingSubmission(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := destination.NewRegistry()
	r.Register("back-office", nopHandler{})

	h, failOpen, err := r.Get("back-office")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h == nil {
		t.Fatal("Get returned nil handler")
	}
	if failOpen {
		t.Error("failOpen = true, want false by default")
	}
}

func TestRegistry_UnknownDestination(t *testing.T) {
	r := destination.NewRegistry()

	_, _, err := r.Get("nonexistent-destination")
	if !errors.Is(err, sendq.ErrUnknownDestination) {
		t.Errorf("Get error = %v, want ErrUnknownDestination", err)
	}
}

func TestRegistry_FailOpenOption(t *testing.T) {
	r := destination.NewRegistry()
	r.Register("email-gateway", nopHandler{}, destination.WithFailOpenCheck())

	_, failOpen, err := r.Get("email-gateway")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !failOpen {
		t.Error("failOpen = false, want true")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := destination.NewRegistry()
	r.Register("legacy-xml-gateway", nopHandler{})
	r.Register("back-office", nopHandler{})
	r.Register("email-gateway", nopHandler{})

	names := r.Names()
	want := []destination.Destination{"back-office", "email-gateway", "legacy-xml-gateway"}
	if len(names) != len(want) {
		t.Fatalf("Names() returned %d entries, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestTerminal_MarksAndPreservesChain(t *testing.T) {
	base := errors.New("schema rejected")
	wrapped := fmt.Errorf("delivering bundle: %w", destination.Terminal(base))

	if !destination.IsTerminal(wrapped) {
		t.Error("IsTerminal = false for a wrapped terminal error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is lost the underlying cause")
	}
}

func TestTerminal_NilAndPlainErrors(t *testing.T) {
	if destination.Terminal(nil) != nil {
		t.Error("Terminal(nil) != nil")
	}
	if destination.IsTerminal(errors.New("connection reset")) {
		t.Error("IsTerminal = true for a plain error")
	}
	if destination.IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true")
	}
}
