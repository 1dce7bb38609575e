package fsevents

import "errors"

// Common errors returned by backends.
var (
	// ErrEventsDropped signals that the native backend lost events and a
	// rescan is advisable. Consumers are expected to reinitialize.
	ErrEventsDropped = errors.New("file events dropped, rescan required")

	// ErrSubscriptionClosed is returned when using a closed subscription.
	ErrSubscriptionClosed = errors.New("subscription is closed")

	// ErrRootNotDirectory is returned when the subscribe root is not a directory.
	ErrRootNotDirectory = errors.New("watch root is not a directory")
)
