// Package driver re-runs dependency-tracked computations when the files
// they touched change.
//
// A computation never declares what it reads; the reactive read primitives
// record that implicitly. The driver runs the computation once under
// tracking, acquires a pooled watch for every collected path, and on any
// matching batch re-runs it, reconciles the watch set against the new
// dependencies, and republishes the result through a versioned state.
//
// Example usage:
//
//	runner := driver.NewRunner(p, log)
//	sub, err := driver.Subscribe(ctx, runner, func(ctx context.Context) ([]string, error) {
//	    return reactive.ReadDir(ctx, "/tmp/proj/specs", reactive.DirOptions{DirectoriesOnly: true}), nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Close()
//
//	cancel := sub.State().Subscribe(func(names []string) {
//	    fmt.Println("specs changed:", names)
//	})
//	defer cancel()
package driver

import (
	"context"
	"sync"

	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/logger"
	"github.com/specview/reactivefs/pkg/pool"
	"github.com/specview/reactivefs/pkg/reactive"
)

// Computation is a read-only function over the filesystem. It must use the
// reactive read primitives (or reactive.Register) for everything it wants
// re-evaluated on change.
type Computation[T any] func(ctx context.Context) (T, error)

// Runner owns the watch pool computations subscribe through.
type Runner struct {
	pool   *pool.Pool
	logger logger.Logger
}

// NewRunner creates a runner over the given pool.
func NewRunner(p *pool.Pool, log logger.Logger) *Runner {
	return &Runner{
		pool:   p,
		logger: log,
	}
}

// Subscription is one live reactive computation.
type Subscription[T any] struct {
	runner  *Runner
	compute Computation[T]
	state   *reactive.State[T]
	baseCtx context.Context

	// runMu serializes re-runs so overlapping change batches cannot
	// interleave their dependency reconciliation.
	runMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	releases map[string]func()
}

// Subscribe runs compute once, starts watching its dependencies, and
// returns the live subscription. A computation that fails on its first run
// has nothing to watch, so the error is returned instead.
func Subscribe[T any](ctx context.Context, r *Runner, compute Computation[T], opts ...reactive.StateOption[T]) (*Subscription[T], error) {
	s := &Subscription[T]{
		runner:   r,
		compute:  compute,
		baseCtx:  ctx,
		releases: make(map[string]func()),
	}

	value, deps, err := s.run()
	if err != nil {
		return nil, err
	}

	s.state = reactive.NewState(value, opts...)

	if err := s.reconcile(deps); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// State returns the published result. Its version moves only when a
// re-run produced a different value.
func (s *Subscription[T]) State() *reactive.State[T] {
	return s.state
}

// run executes the computation under a fresh tracking context.
func (s *Subscription[T]) run() (T, []string, error) {
	ctx, deps := reactive.WithTracking(s.baseCtx)

	value, err := s.compute(ctx)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return value, deps.Paths(), nil
}

// onChange is the pooled watch callback.
func (s *Subscription[T]) onChange([]fsevents.Event) {
	s.Refresh()
}

// Refresh re-runs the computation, reconciles the watch set against the
// new dependency set, and republishes the result.
//
// A failed re-run keeps the previous value and watch set; the files will
// fire again once whatever made them unreadable settles.
func (s *Subscription[T]) Refresh() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	value, deps, err := s.run()
	if err != nil {
		s.runner.logger.Warn("reactive computation failed", "error", err)
		return
	}

	if err := s.reconcile(deps); err != nil {
		s.runner.logger.Warn("failed to reconcile watches", "error", err)
	}

	s.state.Set(value)
}

// reconcile releases watches for dropped dependencies and acquires watches
// for new ones.
func (s *Subscription[T]) reconcile(deps []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}

	want := make(map[string]struct{}, len(deps))
	for _, path := range deps {
		want[path] = struct{}{}
	}

	for path, release := range s.releases {
		if _, keep := want[path]; !keep {
			release()
			delete(s.releases, path)
		}
	}

	var firstErr error
	for path := range want {
		if _, held := s.releases[path]; held {
			continue
		}
		release, err := s.runner.pool.Acquire(s.baseCtx, path, s.onChange, false)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.releases[path] = release
	}

	return firstErr
}

// Close releases every held watch. Safe to call at any time, repeatedly,
// and concurrently with change delivery.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for path, release := range s.releases {
		release()
		delete(s.releases, path)
	}
}
