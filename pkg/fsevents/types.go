// Package fsevents abstracts the native file-event mechanism behind a small
// backend interface so the OS-specific watcher (inotify, FSEvents, ...) is
// swappable and testable.
//
// A Backend opens one recursive Subscription per root directory. Events are
// delivered in batches with absolute paths and reduced to three types:
// create, update, delete. OS-specific metadata never leaves this package.
//
// Example usage:
//
//	backend := fsevents.NewNotifyBackend(logger.Default())
//	sub, err := backend.Subscribe("/tmp/proj", []string{".git"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Close()
//
//	for batch := range sub.Events() {
//	    for _, ev := range batch {
//	        fmt.Printf("%s %s\n", ev.Type, ev.Path)
//	    }
//	}
package fsevents

// EventType describes a file change type.
type EventType uint8

// File change types.
const (
	// Create indicates a file or directory appeared.
	Create EventType = iota

	// Update indicates contents or metadata changed.
	Update

	// Delete indicates a file or directory disappeared (including renames away).
	Delete
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event represents a single file change.
type Event struct {
	// Type is the change type.
	Type EventType

	// Path is the absolute path of the changed file or directory.
	Path string
}

// Subscription is a live recursive watch on one root directory.
type Subscription interface {
	// Events returns the channel of batched file changes.
	//
	// The channel is closed when the subscription is closed.
	Events() <-chan []Event

	// Errors returns the channel of backend errors.
	//
	// A dropped-events condition is reported as ErrEventsDropped; other
	// errors are backend-specific. The channel is closed when the
	// subscription is closed.
	Errors() <-chan error

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Backend opens native file-event subscriptions.
type Backend interface {
	// Subscribe starts a recursive watch rooted at root.
	//
	// Parameters:
	//   - root: absolute directory to watch
	//   - ignore: base names excluded from watching (e.g. ".git")
	//
	// Returns the live subscription, or an error if the watch cannot be
	// established.
	Subscribe(root string, ignore []string) (Subscription, error)
}
