package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/journal"
	"github.com/specview/reactivefs/pkg/logger"
)

// pathSubscription is one registered path-scoped subscriber.
type pathSubscription struct {
	path          string
	watchChildren bool
	callback      Callback
}

// matches applies the dispatch rule: with watchChildren the whole subtree
// matches; without it only the path itself and its direct children do.
func (s *pathSubscription) matches(path string) bool {
	if path == s.path {
		return true
	}
	if s.watchChildren {
		return strings.HasPrefix(path, s.path+string(filepath.Separator))
	}
	return filepath.Dir(path) == s.path
}

// Option configures a ProjectWatcher.
type Option func(*ProjectWatcher)

// WithJournal records every reinitialization in j.
func WithJournal(j journal.Journal) Option {
	return func(w *ProjectWatcher) {
		w.journal = j
	}
}

// ProjectWatcher owns the single backend subscription for one canonical
// project root.
//
// The backend subscription, the subscriber map, and the pending-event
// buffer are guarded by one mutex; every mutation goes through it, which is
// the explicit single-writer discipline this design requires.
type ProjectWatcher struct {
	root    string
	backend fsevents.Backend
	cfg     Config
	logger  logger.Logger
	journal journal.Journal

	initGroup singleflight.Group

	// done is closed exactly once, by Close, and interrupts recovery waits.
	done      chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	state        State
	sub          fsevents.Subscription
	stop         chan struct{} // stops the pump and health loops of the current generation
	subs         map[uuid.UUID]*pathSubscription
	pending      []fsevents.Event
	debounce     *time.Timer
	reinitTimer  *time.Timer
	lastEvent    time.Time
	probePending bool
	reinitCount  uint64
}

// NewProjectWatcher creates a watcher for the given canonical root.
//
// Parameters:
//   - root: absolute, symlink-resolved project root (see CanonicalPath)
//   - backend: native event backend
//   - cfg: tunables; zero values take defaults
//   - log: logger instance
//
// The watcher is created Uninitialized; call Init (or SubscribeAndInit)
// to open the backend subscription.
func NewProjectWatcher(root string, backend fsevents.Backend, cfg Config, log logger.Logger, opts ...Option) *ProjectWatcher {
	w := &ProjectWatcher{
		root:    filepath.Clean(root),
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  log,
		done:    make(chan struct{}),
		subs:    make(map[uuid.UUID]*pathSubscription),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the canonical root this watcher owns.
func (w *ProjectWatcher) Root() string {
	return w.root
}

// State returns the current lifecycle state.
func (w *ProjectWatcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a point-in-time snapshot.
func (w *ProjectWatcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		State:             w.state,
		Subscriptions:     len(w.subs),
		PendingEvents:     len(w.pending),
		Reinitializations: w.reinitCount,
	}
}

// Init opens the backend subscription and starts the dispatch and
// health-check loops.
//
// Init is idempotent: an Active watcher returns nil immediately, and
// concurrent callers share a single in-flight initialization. A fatal
// subscribe failure is returned to every waiting caller; there is no root
// cause the watcher could fix on its own.
func (w *ProjectWatcher) Init(ctx context.Context) error {
	_, err, _ := w.initGroup.Do("init", func() (interface{}, error) {
		return nil, w.doInit(ctx)
	})
	return err
}

func (w *ProjectWatcher) doInit(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateClosed:
		w.mu.Unlock()
		return ErrWatcherClosed
	case StateActive:
		w.mu.Unlock()
		return nil
	}
	w.state = StateInitializing
	w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		w.resetState(StateUninitialized)
		return err
	}

	sub, err := w.backend.Subscribe(w.root, w.cfg.IgnoreNames)
	if err != nil {
		w.resetState(StateUninitialized)
		return fmt.Errorf("failed to open backend subscription for %s: %w", w.root, err)
	}

	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		_ = sub.Close()
		return ErrWatcherClosed
	}
	w.sub = sub
	w.state = StateActive
	w.lastEvent = time.Now()
	w.probePending = false
	stop := make(chan struct{})
	w.stop = stop
	w.mu.Unlock()

	go w.pump(sub, stop)
	go w.healthLoop(stop)

	w.logger.Debug("watcher initialized", "root", w.root)
	return nil
}

// resetState sets the state unless the watcher was closed meanwhile.
func (w *ProjectWatcher) resetState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateClosed {
		w.state = state
	}
}

// Subscribe registers a path-scoped subscription and returns its token.
//
// Parameters:
//   - path: absolute path the subscriber cares about
//   - watchChildren: true to match the entire subtree; false to match the
//     path itself and its direct children only
//   - cb: batch callback
//
// The watcher must already be Active; otherwise ErrNotActive is returned.
// The token carries no meaning beyond being the Unsubscribe key.
func (w *ProjectWatcher) Subscribe(path string, watchChildren bool, cb Callback) (uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateClosed {
		return uuid.Nil, ErrWatcherClosed
	}
	if w.state != StateActive {
		return uuid.Nil, ErrNotActive
	}

	token := uuid.New()
	w.subs[token] = &pathSubscription{
		path:          filepath.Clean(path),
		watchChildren: watchChildren,
		callback:      cb,
	}

	w.logger.Debug("subscription added",
		"root", w.root,
		"path", path,
		"watch_children", watchChildren)

	return token, nil
}

// SubscribeAndInit initializes the watcher if needed, then subscribes.
func (w *ProjectWatcher) SubscribeAndInit(ctx context.Context, path string, watchChildren bool, cb Callback) (uuid.UUID, error) {
	if err := w.Init(ctx); err != nil {
		return uuid.Nil, err
	}
	return w.Subscribe(path, watchChildren, cb)
}

// Unsubscribe removes a subscription by token. Unknown tokens are a no-op.
func (w *ProjectWatcher) Unsubscribe(token uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subs, token)
}

// pump forwards one generation of backend batches and errors until the
// generation is stopped or the backend closes its channels.
func (w *ProjectWatcher) pump(sub fsevents.Subscription, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case batch, ok := <-sub.Events():
			if !ok {
				return
			}
			w.intake(batch)
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			w.handleBackendError(err)
		}
	}
}

// intake buffers a raw batch and (re)arms the debounce timer.
//
// Any event also serves as proof of life: it refreshes the last-event time
// and clears an outstanding health probe.
func (w *ProjectWatcher) intake(batch []fsevents.Event) {
	if len(batch) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateActive {
		return
	}

	w.lastEvent = time.Now()
	w.probePending = false
	w.pending = append(w.pending, batch...)

	if w.debounce == nil {
		w.debounce = time.AfterFunc(w.cfg.DebounceWindow, w.flush)
	} else {
		w.debounce.Reset(w.cfg.DebounceWindow)
	}
}

// flush dispatches the pending buffer: each subscriber whose match rule
// selects at least one event gets exactly one callback with its filtered
// batch, in arrival order.
func (w *ProjectWatcher) flush() {
	w.mu.Lock()
	w.debounce = nil
	events := w.pending
	w.pending = nil
	subs := make([]*pathSubscription, 0, len(w.subs))
	for _, s := range w.subs {
		subs = append(subs, s)
	}
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}

	for _, s := range subs {
		var matched []fsevents.Event
		for _, ev := range events {
			if s.matches(ev.Path) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			w.deliver(s, matched)
		}
	}
}

// deliver invokes one subscriber, isolating panics so dispatch to the
// remaining subscribers continues.
func (w *ProjectWatcher) deliver(s *pathSubscription, events []fsevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("subscriber callback panicked",
				"root", w.root,
				"path", s.path,
				"panic", r)
		}
	}()
	s.callback(events)
}

// handleBackendError reacts to backend errors: a dropped-events condition
// schedules a coalesced reinitialize; anything else is logged and ignored.
func (w *ProjectWatcher) handleBackendError(err error) {
	if errors.Is(err, fsevents.ErrEventsDropped) {
		w.scheduleReinit("dropped events")
		return
	}
	w.logger.Warn("backend error",
		"root", w.root,
		"error", err)
}

// scheduleReinit arms the reinitialize timer once; bursts of the same error
// within the delay collapse into a single reinitialize.
func (w *ProjectWatcher) scheduleReinit(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateClosed || w.reinitTimer != nil {
		return
	}

	w.logger.Warn("scheduling reinitialize",
		"root", w.root,
		"reason", reason,
		"delay", w.cfg.ReinitDelay)

	w.reinitTimer = time.AfterFunc(w.cfg.ReinitDelay, func() {
		w.reinitialize(reason)
	})
}

// healthLoop runs the periodic liveness check for one generation.
func (w *ProjectWatcher) healthLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.healthCheck()
		}
	}
}

// healthCheck verifies the watcher still delivers events. A recent event
// means all is well. On a quiet watcher it touches the root's mtime as a
// probe; if a previous probe went unanswered the watcher is stale and gets
// reinitialized.
func (w *ProjectWatcher) healthCheck() {
	w.mu.Lock()
	if w.state != StateActive {
		w.mu.Unlock()
		return
	}
	if time.Since(w.lastEvent) < w.cfg.HealthInterval {
		w.mu.Unlock()
		return
	}
	if w.probePending {
		w.mu.Unlock()
		w.logger.Warn("watcher is stale, forcing reinitialize", "root", w.root)
		w.reinitialize("stale watcher")
		return
	}
	w.probePending = true
	w.mu.Unlock()

	now := time.Now()
	if err := os.Chtimes(w.root, now, now); err != nil {
		// Probably the root vanished; the next tick escalates via the
		// unanswered probe.
		w.logger.Warn("health probe failed",
			"root", w.root,
			"error", err)
	}
}

// reinitialize tears down the current generation and starts recovery:
// stop the loops, best-effort close the old subscription, reset buffers,
// then re-init (waiting for the root first if it is gone).
//
// Path subscriptions survive: after recovery, existing subscribers keep
// receiving events without re-subscribing.
func (w *ProjectWatcher) reinitialize(reason string) {
	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return
	}

	if w.reinitTimer != nil {
		w.reinitTimer.Stop()
		w.reinitTimer = nil
	}
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	sub := w.sub
	w.sub = nil
	w.pending = nil
	w.probePending = false
	w.reinitCount++
	w.state = StateUninitialized
	w.mu.Unlock()

	w.logger.Info("reinitializing watcher",
		"root", w.root,
		"reason", reason)

	if sub != nil {
		// Best effort: the old subscription may already be dead.
		_ = sub.Close()
	}

	if w.journal != nil {
		if err := w.journal.Record(journal.Entry{
			Root:   w.root,
			Reason: reason,
			Time:   time.Now(),
		}); err != nil {
			w.logger.Warn("failed to record reinitialize",
				"root", w.root,
				"error", err)
		}
	}

	go w.recoverLoop()
}

// recoverLoop re-runs Init until it succeeds or the watcher is closed,
// waiting for a missing root and backing off one health interval between
// failed attempts.
func (w *ProjectWatcher) recoverLoop() {
	for {
		if !w.awaitRoot() {
			return
		}

		err := w.Init(context.Background())
		if err == nil || errors.Is(err, ErrWatcherClosed) {
			return
		}

		w.logger.Warn("reinitialize failed, retrying",
			"root", w.root,
			"error", err,
			"retry_in", w.cfg.HealthInterval)

		if !w.wait(w.cfg.HealthInterval) {
			return
		}
	}
}

// awaitRoot blocks until the canonical root exists, polling at the health
// interval. Returns false if the watcher is closed while waiting.
func (w *ProjectWatcher) awaitRoot() bool {
	for {
		if _, err := os.Stat(w.root); err == nil {
			return true
		}

		w.mu.Lock()
		if w.state == StateClosed {
			w.mu.Unlock()
			return false
		}
		if w.state != StateWaitingForRoot {
			w.logger.Warn("watch root missing, waiting for it to reappear", "root", w.root)
			w.state = StateWaitingForRoot
		}
		w.mu.Unlock()

		if !w.wait(w.cfg.HealthInterval) {
			return false
		}
	}
}

// wait sleeps for d, returning false if the watcher closes first.
func (w *ProjectWatcher) wait(d time.Duration) bool {
	select {
	case <-w.done:
		return false
	case <-time.After(d):
		return true
	}
}

// Close shuts the watcher down: stops all timers and loops, releases the
// backend subscription, and clears subscriptions and buffers. Safe to call
// more than once.
func (w *ProjectWatcher) Close() error {
	var sub fsevents.Subscription

	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return nil
	}
	w.state = StateClosed
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	if w.reinitTimer != nil {
		w.reinitTimer.Stop()
		w.reinitTimer = nil
	}
	sub = w.sub
	w.sub = nil
	w.subs = make(map[uuid.UUID]*pathSubscription)
	w.pending = nil
	w.mu.Unlock()

	w.closeOnce.Do(func() {
		close(w.done)
	})

	w.logger.Debug("watcher closed", "root", w.root)

	if sub != nil {
		return sub.Close()
	}
	return nil
}
