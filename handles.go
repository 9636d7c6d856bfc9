package tempuskv

import "sync"

/*
handles.go implements the active-handle registry and the per-collection
mutex registry as a single map: the same entry that gates a list's lock
also counts toward the reaper's backpressure threshold, since both are
"is this collection name currently in use" bookkeeping keyed by the same
string.

Entries are created lazily on first use and never removed: a collection
name's mutex must stay the one and only mutex for that name for as long
as the process runs, so two callers never end up serializing against
different sync.Mutex values for what is logically the same list. The
refcount still drops to zero when every handle for a name is closed —
only the entry itself, and the mutex it carries, survives.
*/

type handleEntry struct {
	mu   sync.Mutex // per-collection lock used by list push/pop/clear
	refs int
}

type handleRegistry struct {
	mu      sync.Mutex
	entries map[string]*handleEntry
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{entries: make(map[string]*handleEntry)}
}

// acquire increments the refcount for name, creating the entry if absent,
// and returns it. Callers must release exactly once per acquire.
func (r *handleRegistry) acquire(name string) *handleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		e = &handleEntry{}
		r.entries[name] = e
	}
	e.refs++
	return e
}

// release decrements the refcount for name. The entry itself, and its
// mutex, are kept even once the refcount reaches zero: a concurrent
// lockFor or acquire must always see the same entry for a given name, not
// a freshly created one with a different mutex.
func (r *handleRegistry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
}

// count returns the total number of currently-acquired handles across all
// collection names, used by the reaper for backpressure.
func (r *handleRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.entries {
		total += e.refs
	}
	return total
}

// lockFor returns the collection-level mutex for name without changing
// its refcount; used by list operations that already hold a live handle.
func (r *handleRegistry) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &handleEntry{}
		r.entries[name] = e
	}
	r.mu.Unlock()
	return &e.mu
}
