// Package pool reference-counts watch acquisitions so N callers watching
// the same path share one underlying registration with the owning project
// watcher.
//
// Example usage:
//
//	p := pool.New(registry, logger.Default())
//	release, err := p.Acquire(ctx, "/tmp/proj/specs", onChange, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer release()
package pool

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/logger"
	"github.com/specview/reactivefs/pkg/watcher"
)

// entry is the shared registration for one canonical path.
//
// Invariants: the callback count never goes negative, and at most one entry
// exists per canonical path. The entry holds exactly one subscription with
// the owning watcher regardless of how many callers acquired it.
type entry struct {
	owner     *watcher.ProjectWatcher
	token     uuid.UUID
	recursive bool

	mu        sync.Mutex
	callbacks map[uint64]watcher.Callback
}

// Pool multiplexes watch acquisitions onto project watchers.
//
// Acquire and release for the same path are linearized by one mutex, so a
// racing acquire/release pair can neither unsubscribe prematurely nor leak
// a registration.
type Pool struct {
	registry *watcher.Registry
	logger   logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
}

// New creates a pool over the given watcher registry.
func New(registry *watcher.Registry, log logger.Logger) *Pool {
	return &Pool{
		registry: registry,
		logger:   log,
		entries:  make(map[string]*entry),
	}
}

// Acquire takes a reference on a watch for path.
//
// Parameters:
//   - ctx: used when the owning watcher needs initializing
//   - path: path to watch (canonicalized internally)
//   - onChange: called with each matching batch
//   - recursive: true to watch the entire subtree under path
//
// The first acquisition for a path registers one subscription with the
// owning project watcher; later acquisitions reuse it and only bump the
// count. The returned release function is idempotent, never panics, and
// drops the registration when the last reference is gone.
func (p *Pool) Acquire(ctx context.Context, path string, onChange watcher.Callback, recursive bool) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	owner, canonical, err := p.registry.WatcherFor(path)
	if err != nil {
		return nil, err
	}

	e, ok := p.entries[canonical]
	if !ok {
		e = &entry{
			owner:     owner,
			recursive: recursive,
			callbacks: make(map[uint64]watcher.Callback),
		}

		token, subErr := owner.SubscribeAndInit(ctx, canonical, recursive, e.dispatch)
		if subErr != nil {
			return nil, subErr
		}
		e.token = token
		p.entries[canonical] = e

		p.logger.Debug("watch registered",
			"path", canonical,
			"recursive", recursive)
	}

	p.nextID++
	id := p.nextID

	e.mu.Lock()
	e.callbacks[id] = onChange
	e.mu.Unlock()

	released := false
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if released {
			return
		}
		released = true
		p.releaseLocked(canonical, id)
	}, nil
}

// releaseLocked drops one reference and unsubscribes when the count
// reaches zero. Callers hold p.mu.
func (p *Pool) releaseLocked(canonical string, id uint64) {
	e, ok := p.entries[canonical]
	if !ok {
		return
	}

	e.mu.Lock()
	delete(e.callbacks, id)
	remaining := len(e.callbacks)
	e.mu.Unlock()

	if remaining > 0 {
		return
	}

	delete(p.entries, canonical)
	e.owner.Unsubscribe(e.token)

	p.logger.Debug("watch released", "path", canonical)
}

// dispatch fans one batch out to every live acquirer of the entry.
func (e *entry) dispatch(events []fsevents.Event) {
	for _, cb := range e.snapshot() {
		cb(events)
	}
}

// snapshot copies the current callbacks so delivery runs without holding
// the entry lock; dispatch runs on the watcher goroutine while
// acquire/release mutate the map under the same lock.
func (e *entry) snapshot() []watcher.Callback {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]watcher.Callback, 0, len(e.callbacks))
	for _, cb := range e.callbacks {
		out = append(out, cb)
	}
	return out
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Refs returns the reference count for path's canonical form, zero when no
// entry exists.
func (p *Pool) Refs(path string) int {
	canonical, err := watcher.CanonicalPath(path)
	if err != nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[canonical]
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.callbacks)
}
