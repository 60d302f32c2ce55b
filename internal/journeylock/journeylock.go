// Package journeylock serializes state transitions per journey. All
// journey mutations in a process must go through the same Registry so
// that read-mutate-write cycles never interleave for one journey.
package journeylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Registry struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]*entry)}
}

// Acquire blocks until the journey's lock is held and returns the
// release func. Entries are dropped once the last holder releases, so
// the map does not grow with journey history.
func (r *Registry) Acquire(journeyID uint64) func() {
	r.mu.Lock()
	e, ok := r.entries[journeyID]
	if !ok {
		e = &entry{}
		r.entries[journeyID] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.entries, journeyID)
		}
		r.mu.Unlock()
	}
}
