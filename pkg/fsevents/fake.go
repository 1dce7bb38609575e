package fsevents

import (
	"sync"
)

// FakeBackend implements Backend in memory for tests.
//
// Every Subscribe call produces a FakeSubscription whose event and error
// streams are driven by the test. The backend counts subscribe and close
// calls so tests can assert that exactly one native subscription exists per
// root and that recovery opens a new one.
type FakeBackend struct {
	mu            sync.Mutex
	subscribeErr  error
	subs          []*FakeSubscription
	subscribeCalc int
	lastIgnore    []string
}

// NewFakeBackend creates an in-memory backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

// FailSubscribe makes subsequent Subscribe calls return err (nil restores
// normal behavior).
func (b *FakeBackend) FailSubscribe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeErr = err
}

// Subscribe implements Backend.Subscribe.
func (b *FakeBackend) Subscribe(root string, ignore []string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribeCalc++
	b.lastIgnore = append([]string(nil), ignore...)

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}

	sub := &FakeSubscription{
		root:   root,
		events: make(chan []Event, 64),
		errors: make(chan error, 16),
	}
	b.subs = append(b.subs, sub)

	return sub, nil
}

// SubscribeCount returns how many times Subscribe was called, including
// failed attempts.
func (b *FakeBackend) SubscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeCalc
}

// LiveCount returns the number of subscriptions not yet closed.
func (b *FakeBackend) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := 0
	for _, sub := range b.subs {
		if !sub.Closed() {
			live++
		}
	}
	return live
}

// Last returns the most recently created subscription, or nil.
func (b *FakeBackend) Last() *FakeSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) == 0 {
		return nil
	}
	return b.subs[len(b.subs)-1]
}

// LastIgnore returns the ignore set passed to the most recent Subscribe.
func (b *FakeBackend) LastIgnore() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lastIgnore...)
}

// FakeSubscription implements Subscription with test-driven streams.
type FakeSubscription struct {
	root   string
	events chan []Event
	errors chan error

	mu     sync.Mutex
	closed bool
}

// Root returns the root this subscription was opened on.
func (s *FakeSubscription) Root() string {
	return s.root
}

// Emit delivers a batch of events to the consumer.
//
// Emitting on a closed subscription is a no-op, mirroring a native backend
// that went quiet after close.
func (s *FakeSubscription) Emit(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.events <- append([]Event(nil), events...)
}

// EmitError delivers a backend error to the consumer.
func (s *FakeSubscription) EmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.errors <- err
}

// Events implements Subscription.Events.
func (s *FakeSubscription) Events() <-chan []Event {
	return s.events
}

// Errors implements Subscription.Errors.
func (s *FakeSubscription) Errors() <-chan error {
	return s.errors
}

// Close implements Subscription.Close.
func (s *FakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	close(s.errors)
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
