package job

import (
	"sync"

	"github.com/theopensystemslab/sendq"
)

// Registry is the in-memory store mapping session identifiers to their
// single in-flight Job. It is the only shared mutable state in the core and
// is owned exclusively by the dispatcher and resolver. Safe for concurrent
// use.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
	}
}

// Create inserts j, rejecting the insert with sendq.ErrDuplicateJob if a Job
// already exists for the session. A duplicate means a dispatch is still mid
// flight; callers must wait for it to resolve rather than coalesce into it.
func (r *Registry) Create(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[j.SessionID]; exists {
		return sendq.ErrDuplicateJob
	}
	r.jobs[j.SessionID] = j
	return nil
}

// Get returns the Job for sessionID, or sendq.ErrJobNotFound.
func (r *Registry) Get(sessionID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[sessionID]
	if !ok {
		return nil, sendq.ErrJobNotFound
	}
	return j, nil
}

// Remove deletes the Job for sessionID. Removing a session with no Job is a
// no-op, not an error.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, sessionID)
}

// Len returns the number of in-flight Jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
