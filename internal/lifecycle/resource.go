// Package lifecycle provides the request lifecycle shared by every remote
// operation: idle -> pending -> succeeded|failed, back to idle on Reset.
package lifecycle

import (
	"sync"
)

// Status is the lifecycle status of a resource.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RequestState is the status and user-facing message of a resource.
type RequestState struct {
	Status  Status
	Message string
}

// Token identifies one issued request on a resource.
type Token uint64

// Observer is notified after every transition of a resource.
type Observer func(name string, state RequestState)

// Resource holds the latest known value of one entity and its request state.
// The state is only changed by a settled request whose token is the latest
// issued one. Whole-value results follow the same rule; keyed merges (see
// Merge) are applied regardless of order.
type Resource[T any] struct {
	name string

	mu     sync.RWMutex
	value  T
	state  RequestState
	issued Token

	observers []Observer
}

// NewResource creates a resource holding initial.
func NewResource[T any](name string, initial T) *Resource[T] {
	return &Resource[T]{
		name:  name,
		value: initial,
	}
}

// Name returns the resource name.
func (r *Resource[T]) Name() string {
	return r.name
}

// Value returns the current value.
func (r *Resource[T]) Value() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// State returns the current request state.
func (r *Resource[T]) State() RequestState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Observe registers fn to be called after each transition.
func (r *Resource[T]) Observe(fn Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Reset returns the state to idle without touching the value.
func (r *Resource[T]) Reset() {
	r.mu.Lock()
	r.state = RequestState{Status: StatusIdle}
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
}

// Begin enters pending, clearing any previous message, and returns the token
// of the new request.
func (r *Resource[T]) Begin() Token {
	r.mu.Lock()
	r.issued++
	tok := r.issued
	r.state = RequestState{Status: StatusPending}
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
	return tok
}

// Succeed applies update to the value and marks the resource succeeded.
// It reports false, leaving the resource untouched, when tok is stale.
func (r *Resource[T]) Succeed(tok Token, update func(current T) T, message string) bool {
	r.mu.Lock()
	if tok != r.issued {
		r.mu.Unlock()
		return false
	}
	if update != nil {
		r.value = update(r.value)
	}
	r.state = RequestState{Status: StatusSucceeded, Message: message}
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
	return true
}

// Merge applies update to the value even when tok is stale, so results keyed
// by id from overlapping requests are all kept. The state only becomes
// succeeded when tok is the latest; Merge reports whether it was.
func (r *Resource[T]) Merge(tok Token, update func(current T) T, message string) bool {
	r.mu.Lock()
	if update != nil {
		r.value = update(r.value)
	}
	latest := tok == r.issued
	if latest {
		r.state = RequestState{Status: StatusSucceeded, Message: message}
	}
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
	return latest
}

// Fail marks the resource failed with message. It reports false when tok is
// stale.
func (r *Resource[T]) Fail(tok Token, message string) bool {
	r.mu.Lock()
	if tok != r.issued {
		r.mu.Unlock()
		return false
	}
	r.state = RequestState{Status: StatusFailed, Message: message}
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
	return true
}

// Set replaces the value outside of a request (used to seed persisted state).
func (r *Resource[T]) Set(value T) {
	r.mu.Lock()
	r.value = value
	state, observers := r.state, r.observers
	r.mu.Unlock()
	r.notify(observers, state)
}

// notify runs outside the lock with the state captured by the transition.
func (r *Resource[T]) notify(observers []Observer, state RequestState) {
	for _, fn := range observers {
		fn(r.name, state)
	}
}
