// Package watcher owns the single native file-event subscription per
// canonical project root and multiplexes path-scoped subscribers over it.
//
// A ProjectWatcher debounces raw backend batches, dispatches them to
// matching subscribers, and runs a health-check/self-heal loop that
// recovers from dropped events and from deletion of the watched root.
// Consumers normally reach it through a Registry, which caches one
// instance per canonical root.
//
// Example usage:
//
//	registry := watcher.NewRegistry(fsevents.NewNotifyBackend(log), watcher.DefaultConfig(), log)
//	defer registry.CloseAll()
//
//	w, err := registry.Watcher("/tmp/proj")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	token, err := w.SubscribeAndInit(ctx, "/tmp/proj/specs", true, func(events []fsevents.Event) {
//	    // one batch per debounce window
//	})
package watcher

import (
	"time"

	"github.com/specview/reactivefs/pkg/fsevents"
)

// State describes the project watcher lifecycle.
type State uint8

// Watcher lifecycle states.
const (
	// StateUninitialized means no backend subscription exists yet.
	StateUninitialized State = iota

	// StateInitializing means a backend subscription is being established.
	StateInitializing

	// StateActive means events are flowing.
	StateActive

	// StateWaitingForRoot means the watched root disappeared and the
	// watcher is polling for it to come back.
	StateWaitingForRoot

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateWaitingForRoot:
		return "waiting-for-root"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callback receives one filtered batch per debounce window.
//
// Callbacks run on the watcher's dispatch goroutine; panics are recovered
// and logged so one faulty subscriber cannot starve the others.
type Callback func(events []fsevents.Event)

// Config contains project watcher tunables.
type Config struct {
	// DebounceWindow is the idle period after the last event before the
	// pending buffer is flushed to subscribers.
	// Default: 50ms.
	DebounceWindow time.Duration

	// HealthInterval is how often the health-check loop runs, and also the
	// poll interval while waiting for a deleted root to reappear.
	// Default: 3s.
	HealthInterval time.Duration

	// ReinitDelay is how long to wait before reinitializing after the
	// backend reports dropped events. Repeats within the delay coalesce
	// into a single reinitialize.
	// Default: 1s.
	ReinitDelay time.Duration

	// IgnoreNames are base names excluded from the backend subscription.
	// Default: .git, node_modules, .DS_Store.
	IgnoreNames []string
}

// DefaultConfig returns a Config with default tunables.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 50 * time.Millisecond,
		HealthInterval: 3 * time.Second,
		ReinitDelay:    time.Second,
		IgnoreNames:    []string{".git", "node_modules", ".DS_Store"},
	}
}

// withDefaults fills zero values with defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = def.DebounceWindow
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = def.HealthInterval
	}
	if c.ReinitDelay <= 0 {
		c.ReinitDelay = def.ReinitDelay
	}
	if c.IgnoreNames == nil {
		c.IgnoreNames = def.IgnoreNames
	}
	return c
}

// Stats is a point-in-time snapshot of a project watcher.
type Stats struct {
	// State is the current lifecycle state.
	State State

	// Subscriptions is the number of registered path subscriptions.
	Subscriptions int

	// PendingEvents is the number of buffered events awaiting dispatch.
	PendingEvents int

	// Reinitializations counts completed recovery cycles.
	Reinitializations uint64
}
