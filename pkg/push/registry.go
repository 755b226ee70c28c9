package push

import "sync"

// entry is one registry slot: either an already-realized value or a pending
// constructor. The mutex makes first realization exclusive per entry; the
// outcome, value or error, is memoized for the registry's lifetime.
type entry[T any] struct {
	mu       sync.Mutex
	realized bool
	value    T
	err      error
	build    func() (T, error)
}

func (e *entry[T]) realize() (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.realized {
		e.value, e.err = e.build()
		e.realized = true
		e.build = nil
	}
	return e.value, e.err
}

// Registry is an ordered collection of delivery units whose construction is
// deferred until first use. Adding is cheap and side-effect free; expensive
// setup (such as a gateway's authentication handshake) runs on the first
// Realize call, exactly once per entry, even under concurrent access.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries []*entry[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Add appends an already-constructed value.
func (r *Registry[T]) Add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry[T]{realized: true, value: v})
}

// AddLazy appends a constructor to be invoked on first Realize.
func (r *Registry[T]) AddLazy(build func() (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry[T]{build: build})
}

// Len reports the number of entries, realized or not.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Realize returns every entry's value in insertion order, constructing any
// entry not yet realized. The first construction failure aborts the call;
// entries realized before the failure stay memoized and are not reconstructed
// on a later call. A failed entry's error is memoized the same way: the unit
// must be re-registered to be retried.
func (r *Registry[T]) Realize() ([]T, error) {
	r.mu.RLock()
	entries := make([]*entry[T], len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		v, err := e.realize()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
