package destination

import (
	"fmt"
	"sort"
	"sync"

	"github.com/theopensystemslab/sendq"
)

// entry pairs a handler with its registration options.
type entry struct {
	handler  Handler
	failOpen bool
}

// RegisterOption configures a single destination registration.
type RegisterOption func(*entry)

// WithFailOpenCheck makes a failing HasExistingSubmission lookup behave as
// "not submitted" instead of aborting dispatch for the destination. Only
// enable this for destinations where a duplicate submission is harmless;
// the default fails closed to preserve the at-most-one-success guarantee.
func WithFailOpenCheck() RegisterOption {
	return func(e *entry) { e.failOpen = true }
}

// Registry maps destination names to their handlers. The set is intended to
// be fixed at startup, but registration is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Destination]entry
}

// NewRegistry creates an empty destination registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Destination]entry),
	}
}

// Register binds a handler to a destination name. Registering the same name
// twice replaces the previous handler.
func (r *Registry) Register(dest Destination, h Handler, opts ...RegisterOption) {
	if h == nil {
		panic(fmt.Sprintf("destination: nil handler for %q", dest))
	}

	e := entry{handler: h}
	for _, opt := range opts {
		opt(&e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[dest] = e
}

// Get returns the handler for the given destination and whether its
// existing-submission check fails open.
func (r *Registry) Get(dest Destination) (Handler, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[dest]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", sendq.ErrUnknownDestination, dest)
	}
	return e.handler, e.failOpen, nil
}

// Names returns all registered destination names, sorted for stable output.
func (r *Registry) Names() []Destination {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Destination, 0, len(r.entries))
	for dest := range r.entries {
		names = append(names, dest)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
