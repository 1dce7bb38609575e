package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/journal"
	"github.com/specview/reactivefs/pkg/logger"
)

// fastConfig returns tunables small enough for tests but large enough to
// stay deterministic.
func fastConfig() Config {
	return Config{
		DebounceWindow: 30 * time.Millisecond,
		HealthInterval: 40 * time.Millisecond,
		ReinitDelay:    20 * time.Millisecond,
		IgnoreNames:    []string{".git"},
	}
}

// batchRecorder collects delivered batches.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]fsevents.Event
}

func (r *batchRecorder) callback(events []fsevents.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := append([]fsevents.Event(nil), events...)
	r.batches = append(r.batches, copied)
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *batchRecorder) batch(i int) []fsevents.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[i]
}

func newActiveWatcher(t *testing.T, root string) (*ProjectWatcher, *fsevents.FakeBackend) {
	t.Helper()

	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(root, backend, fastConfig(), logger.Noop())
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.Init(context.Background()))
	require.Equal(t, StateActive, w.State())
	return w, backend
}

func TestInitIsIdempotent(t *testing.T) {
	w, backend := newActiveWatcher(t, t.TempDir())

	require.NoError(t, w.Init(context.Background()))
	require.NoError(t, w.Init(context.Background()))

	assert.Equal(t, 1, backend.SubscribeCount())
	assert.Equal(t, StateActive, w.State())
}

func TestConcurrentInitSharesOneSubscription(t *testing.T) {
	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(t.TempDir(), backend, fastConfig(), logger.Noop())
	defer func() { _ = w.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Init(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.SubscribeCount())
	assert.Equal(t, StateActive, w.State())
}

func TestInitFailurePropagates(t *testing.T) {
	backend := fsevents.NewFakeBackend()
	backend.FailSubscribe(os.ErrPermission)

	w := NewProjectWatcher(t.TempDir(), backend, fastConfig(), logger.Noop())
	defer func() { _ = w.Close() }()

	err := w.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, w.State())

	// A later attempt can succeed.
	backend.FailSubscribe(nil)
	require.NoError(t, w.Init(context.Background()))
	assert.Equal(t, StateActive, w.State())
}

func TestInitPassesIgnoreSet(t *testing.T) {
	_, backend := newActiveWatcher(t, t.TempDir())
	assert.Equal(t, []string{".git"}, backend.LastIgnore())
}

func TestSubscribeRequiresActive(t *testing.T) {
	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(t.TempDir(), backend, fastConfig(), logger.Noop())
	defer func() { _ = w.Close() }()

	_, err := w.Subscribe("/any", false, func([]fsevents.Event) {})
	require.ErrorIs(t, err, ErrNotActive)

	// The auto-initializing variant succeeds from scratch.
	token, err := w.SubscribeAndInit(context.Background(), "/any", false, func([]fsevents.Event) {})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, token)
	assert.Equal(t, 1, w.Stats().Subscriptions)
}

func TestMatchRule(t *testing.T) {
	recursive := &pathSubscription{path: "/a/b", watchChildren: true}
	direct := &pathSubscription{path: "/a/b", watchChildren: false}

	tests := []struct {
		name string
		sub  *pathSubscription
		path string
		want bool
	}{
		{"recursive deep child", recursive, "/a/b/c/d.txt", true},
		{"recursive self", recursive, "/a/b", true},
		{"recursive sibling prefix", recursive, "/a/bx/d.txt", false},
		{"direct self", direct, "/a/b", true},
		{"direct child", direct, "/a/b/x", true},
		{"direct grandchild", direct, "/a/b/x/y", false},
		{"direct sibling prefix", direct, "/a/bx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.matches(tt.path))
		})
	}
}

func TestDebounceCollapsesRapidEvents(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	rec := &batchRecorder{}
	_, err := w.Subscribe(root, true, rec.callback)
	require.NoError(t, err)

	target := filepath.Join(root, "file.txt")
	for i := 0; i < 5; i++ {
		backend.Last().Emit(fsevents.Event{Type: fsevents.Update, Path: target})
	}

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Everything arrived as a single in-order batch.
	batch := rec.batch(0)
	assert.Len(t, batch, 5)
	for _, ev := range batch {
		assert.Equal(t, target, ev.Path)
	}

	// No trailing second flush.
	time.Sleep(4 * w.cfg.DebounceWindow)
	assert.Equal(t, 1, rec.count())
}

func TestDispatchFiltersPerSubscriber(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	specs := filepath.Join(root, "specs")
	other := filepath.Join(root, "other")

	specRec := &batchRecorder{}
	_, err := w.Subscribe(specs, true, specRec.callback)
	require.NoError(t, err)

	otherRec := &batchRecorder{}
	_, err = w.Subscribe(other, true, otherRec.callback)
	require.NoError(t, err)

	backend.Last().Emit(
		fsevents.Event{Type: fsevents.Create, Path: filepath.Join(specs, "auth", "spec.md")},
		fsevents.Event{Type: fsevents.Update, Path: filepath.Join(specs, "README.md")},
	)

	require.Eventually(t, func() bool {
		return specRec.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, specRec.batch(0), 2)

	// The non-matching subscriber was not called at all.
	time.Sleep(4 * w.cfg.DebounceWindow)
	assert.Equal(t, 0, otherRec.count())
}

func TestCallbackPanicDoesNotAbortDispatch(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	_, err := w.Subscribe(root, true, func([]fsevents.Event) {
		panic("subscriber bug")
	})
	require.NoError(t, err)

	rec := &batchRecorder{}
	_, err = w.Subscribe(root, true, rec.callback)
	require.NoError(t, err)

	backend.Last().Emit(fsevents.Event{Type: fsevents.Update, Path: filepath.Join(root, "x")})

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	rec := &batchRecorder{}
	token, err := w.Subscribe(root, true, rec.callback)
	require.NoError(t, err)

	w.Unsubscribe(token)
	// Unknown and repeated tokens are safe no-ops.
	w.Unsubscribe(token)

	backend.Last().Emit(fsevents.Event{Type: fsevents.Update, Path: filepath.Join(root, "x")})
	time.Sleep(4 * w.cfg.DebounceWindow)

	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, w.Stats().Subscriptions)
}

func TestDroppedEventsCoalesceIntoOneReinitialize(t *testing.T) {
	root := t.TempDir()

	backend := fsevents.NewFakeBackend()
	j := journal.NewMemoryJournal()
	w := NewProjectWatcher(root, backend, fastConfig(), logger.Noop(), WithJournal(j))
	defer func() { _ = w.Close() }()
	require.NoError(t, w.Init(context.Background()))

	first := backend.Last()
	first.EmitError(fsevents.ErrEventsDropped)
	first.EmitError(fsevents.ErrEventsDropped)

	require.Eventually(t, func() bool {
		return backend.SubscribeCount() == 2 && w.State() == StateActive
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, first.Closed(), "old subscription must be released")

	// Two errors inside the delay produce exactly one recovery cycle.
	time.Sleep(5 * w.cfg.ReinitDelay)
	assert.Equal(t, 2, backend.SubscribeCount())
	assert.Equal(t, uint64(1), w.Stats().Reinitializations)

	entries, err := j.Entries(w.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dropped events", entries[0].Reason)
}

func TestOtherBackendErrorsAreNonFatal(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	backend.Last().EmitError(os.ErrPermission)
	time.Sleep(4 * w.cfg.ReinitDelay)

	assert.Equal(t, 1, backend.SubscribeCount())
	assert.Equal(t, StateActive, w.State())
}

func TestSubscriptionsSurviveReinitialize(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	rec := &batchRecorder{}
	_, err := w.Subscribe(root, true, rec.callback)
	require.NoError(t, err)

	backend.Last().EmitError(fsevents.ErrEventsDropped)

	require.Eventually(t, func() bool {
		return backend.SubscribeCount() == 2 && w.State() == StateActive
	}, 2*time.Second, 5*time.Millisecond)

	// The existing subscriber observes events from the new subscription
	// without re-subscribing.
	backend.Last().Emit(fsevents.Event{Type: fsevents.Update, Path: filepath.Join(root, "f")})

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRootDeletedThenRecreated(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "proj")
	require.NoError(t, os.Mkdir(root, 0o755))

	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(root, backend, fastConfig(), logger.Noop())
	defer func() { _ = w.Close() }()
	require.NoError(t, w.Init(context.Background()))

	rec := &batchRecorder{}
	_, err := w.Subscribe(root, true, rec.callback)
	require.NoError(t, err)

	// Delete the root, then let a dropped-events error trigger recovery.
	require.NoError(t, os.RemoveAll(root))
	backend.Last().EmitError(fsevents.ErrEventsDropped)

	require.Eventually(t, func() bool {
		return w.State() == StateWaitingForRoot
	}, 2*time.Second, 5*time.Millisecond)

	// Recreate it; the watcher must come back on its own.
	require.NoError(t, os.Mkdir(root, 0o755))

	require.Eventually(t, func() bool {
		return w.State() == StateActive
	}, 2*time.Second, 5*time.Millisecond)

	// Existing subscribers observe writes after recovery.
	backend.Last().Emit(fsevents.Event{Type: fsevents.Create, Path: filepath.Join(root, "new.md")})

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealthProbeTouchesRoot(t *testing.T) {
	root := t.TempDir()
	w, _ := newActiveWatcher(t, root)
	_ = w

	before, err := os.Stat(root)
	require.NoError(t, err)

	// With no events flowing, the health loop probes by touching the
	// root's mtime.
	require.Eventually(t, func() bool {
		after, statErr := os.Stat(root)
		return statErr == nil && after.ModTime().After(before.ModTime())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleWatcherForcesReinitialize(t *testing.T) {
	root := t.TempDir()

	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(root, backend, fastConfig(), logger.Noop())
	defer func() { _ = w.Close() }()
	require.NoError(t, w.Init(context.Background()))

	// The fake backend never answers the probe, so the second quiet health
	// tick must conclude the watcher is stale and reinitialize.
	require.Eventually(t, func() bool {
		return backend.SubscribeCount() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEventsKeepProbedWatcherAlive(t *testing.T) {
	root := t.TempDir()
	w, backend := newActiveWatcher(t, root)

	// Any event clears an outstanding probe, so a steady trickle of events
	// must prevent the stale-watcher escalation entirely.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.HealthInterval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				backend.Last().Emit(fsevents.Event{Type: fsevents.Update, Path: filepath.Join(root, "f")})
			}
		}
	}()

	time.Sleep(6 * w.cfg.HealthInterval)
	close(stop)
	wg.Wait()

	assert.Equal(t, 1, backend.SubscribeCount())
	assert.Equal(t, StateActive, w.State())
}

func TestCloseReleasesEverything(t *testing.T) {
	opt := goleak.IgnoreCurrent()

	root := t.TempDir()
	backend := fsevents.NewFakeBackend()
	w := NewProjectWatcher(root, backend, fastConfig(), logger.Noop())
	require.NoError(t, w.Init(context.Background()))

	var calls int32
	_, err := w.Subscribe(root, true, func([]fsevents.Event) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, StateClosed, w.State())
	assert.Equal(t, 0, backend.LiveCount())
	assert.Equal(t, 0, w.Stats().Subscriptions)

	_, err = w.Subscribe(root, true, func([]fsevents.Event) {})
	require.ErrorIs(t, err, ErrWatcherClosed)
	require.ErrorIs(t, w.Init(context.Background()), ErrWatcherClosed)

	// Give the pump and health goroutines a moment to observe the stop.
	time.Sleep(100 * time.Millisecond)
	goleak.VerifyNone(t, opt)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
