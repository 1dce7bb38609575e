package reactive

import (
	"reflect"
	"sync"
)

// State holds a value, a version counter, and a change predicate.
//
// Set replaces the value, bumps the version, and notifies subscribers only
// when the predicate says the value actually changed; equal writes are
// complete no-ops. The version strictly increases and subscribers never
// observe a regression.
type State[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	equals  func(a, b T) bool
	subs    map[uint64]func(T)
	nextID  uint64
}

// StateOption configures a State.
type StateOption[T any] func(*State[T])

// WithEquals replaces the change predicate. The default is structural
// equality; callers with cheaper or looser notions of sameness (pointer
// identity, id fields) supply their own.
func WithEquals[T any](equals func(a, b T) bool) StateOption[T] {
	return func(s *State[T]) {
		s.equals = equals
	}
}

// NewState creates a State holding initial at version zero.
func NewState[T any](initial T, opts ...StateOption[T]) *State[T] {
	s := &State[T]{
		value: initial,
		equals: func(a, b T) bool {
			return reflect.DeepEqual(a, b)
		},
		subs: make(map[uint64]func(T)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current value without side effects.
func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Version returns the current version. It changes by exactly one per
// effective Set.
func (s *State[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Set publishes next if it differs from the current value per the change
// predicate. Returns true when the value changed.
//
// Subscribers are notified outside the lock, so a subscriber may call Get
// or even Set without deadlocking.
func (s *State[T]) Set(next T) bool {
	s.mu.Lock()
	if s.equals(s.value, next) {
		s.mu.Unlock()
		return false
	}

	s.value = next
	s.version++

	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Subscribe registers fn to be called with each new value. The returned
// cancel function is idempotent.
func (s *State[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
