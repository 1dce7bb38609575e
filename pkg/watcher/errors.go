package watcher

import "errors"

// Common errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when using a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrNotActive is returned by Subscribe when the watcher has not been
	// initialized. Use SubscribeAndInit to initialize transparently.
	ErrNotActive = errors.New("watcher is not active")

	// ErrRegistryClosed is returned when using a closed registry.
	ErrRegistryClosed = errors.New("watcher registry is closed")
)
