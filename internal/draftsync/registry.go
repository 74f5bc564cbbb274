package draftsync

import (
	"context"
	"errors"
	"sync"
)

// ErrLoadAbandoned is returned by Wait when the first claim was released
// before it finished loading.
var ErrLoadAbandoned = errors.New("draftsync: shared load abandoned")

// LoadResult is what a load adopted: a record, or nil when neither store had
// one.
type LoadResult struct {
	Record *Record
	Source Source
}

type registryEntry struct {
	refs      int
	done      chan struct{}
	completed bool
	abandoned bool
	reset     bool // discarded while loading
	result    LoadResult
}

// Registry deduplicates draft loads across managers. The first manager to
// claim a formID loads it; managers that claim the same formID while the claim
// is held reuse that result and never read the remote store themselves. The
// entry lives until the last claim is released.
//
// Registry also provides the per-form lock that orders local writes.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	locks   map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Claim is one manager's hold on a formID.
type Claim struct {
	registry *Registry
	formID   string
	entry    *registryEntry
	first    bool
	once     sync.Once
}

// Claim registers interest in formID. Claim and the "am I first" check happen
// under one lock, so two simultaneous first calls cannot both be first.
func (r *Registry) Claim(formID string) *Claim {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[formID]
	if !ok {
		e = &registryEntry{done: make(chan struct{})}
		r.entries[formID] = e
	}
	e.refs++
	return &Claim{registry: r, formID: formID, entry: e, first: !ok}
}

// First reports whether this claim must perform the load.
func (c *Claim) First() bool {
	return c.first
}

// Complete publishes the load result to waiting claims. Only the first claim
// may complete; later calls are ignored.
func (c *Claim) Complete(res LoadResult) {
	if !c.first {
		return
	}
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	c.completeLocked(res)
}

func (c *Claim) completeLocked(res LoadResult) {
	e := c.entry
	if e.completed {
		return
	}
	if e.reset {
		res = LoadResult{Source: SourceInitial}
		e.reset = false
	}
	e.result = res
	e.completed = true
	close(e.done)
}

// Wait blocks until the first claim completes and returns the most recent
// result for the formID. It returns ErrLoadAbandoned when the first claim was
// released without a result.
func (c *Claim) Wait(ctx context.Context) (LoadResult, error) {
	select {
	case <-c.entry.done:
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	}
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	if c.entry.abandoned {
		return LoadResult{}, ErrLoadAbandoned
	}
	return c.entry.result, nil
}

// Release drops the claim. A first claim released before completing wakes
// its waiters with ErrLoadAbandoned, and the next Claim for the formID loads
// afresh. Release is idempotent.
func (c *Claim) Release() {
	c.once.Do(func() {
		r := c.registry
		r.mu.Lock()
		defer r.mu.Unlock()

		e := c.entry
		if c.first && !e.completed {
			e.abandoned = true
			e.completed = true
			close(e.done)
			if r.entries[c.formID] == e {
				delete(r.entries, c.formID)
			}
		}
		e.refs--
		if e.refs <= 0 && r.entries[c.formID] == e {
			delete(r.entries, c.formID)
		}
	})
}

// Publish records a newer result for formID, typically after a save, so
// managers that join later start from it.
func (r *Registry) Publish(formID string, res LoadResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[formID]; ok && e.completed {
		e.result = res
	}
}

// Reset forgets the loaded record for formID after a discard. A load still in
// flight completes with the initial result instead of what it read.
func (r *Registry) Reset(formID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[formID]
	if !ok {
		return
	}
	if !e.completed {
		e.reset = true
		return
	}
	e.result = LoadResult{Source: SourceInitial}
}

// Refs returns the number of live claims on formID.
func (r *Registry) Refs(formID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[formID]; ok {
		return e.refs
	}
	return 0
}

// Lock acquires the per-form write lock and returns its unlock function.
func (r *Registry) Lock(formID string) func() {
	r.mu.Lock()
	l, ok := r.locks[formID]
	if !ok {
		l = &formLock{}
		r.locks[formID] = l
	}
	l.users++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.users--
		if l.users == 0 && r.locks[formID] == l {
			delete(r.locks, formID)
		}
		r.mu.Unlock()
	}
}

// lockCount returns the number of per-form locks currently tracked.
func (r *Registry) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
