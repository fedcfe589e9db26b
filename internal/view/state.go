// Package view holds the query state of a report screen: the fetch
// lifecycle and the active filter.
//
// A screen is Loading until its first fetch completes, then Ready or
// Failed. A refresh goes back through Loading; a retry is only valid from
// Failed. Only one fetch runs at a time per screen.
package view

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrFetchInFlight = errors.New("a fetch is already in progress")
	ErrNotReady      = errors.New("data is not loaded")
	ErrNotFailed     = errors.New("retry is only possible after a failed fetch")
)

const defaultFailureMessage = "Failed to fetch data"

// Phase is the tag of a State.
type Phase int

const (
	Loading Phase = iota
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "loading"
	}
}

// State is a tagged union over the three phases. Data and FetchedAt are
// only meaningful when Ready, Message and Err only when Failed.
type State[T any] struct {
	phase     Phase
	data      T
	fetchedAt time.Time
	message   string
	err       error
}

func loadingState[T any]() State[T] {
	return State[T]{phase: Loading}
}

func readyState[T any](data T, at time.Time) State[T] {
	return State[T]{phase: Ready, data: data, fetchedAt: at}
}

func failedState[T any](err error) State[T] {
	msg := defaultFailureMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return State[T]{phase: Failed, message: msg, err: err}
}

func (s State[T]) Phase() Phase { return s.phase }

// Data returns the loaded data and true when the state is Ready.
func (s State[T]) Data() (T, bool) {
	if s.phase != Ready {
		var zero T
		return zero, false
	}
	return s.data, true
}

func (s State[T]) FetchedAt() time.Time { return s.fetchedAt }

// Message is the user-facing failure message, empty unless Failed.
func (s State[T]) Message() string { return s.message }

// Err is the fetch error behind a Failed state.
func (s State[T]) Err() error { return s.err }

// Fetcher loads the data of a screen.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Machine drives the fetch lifecycle of one screen. State changes are
// serialized; the fetch itself runs without holding the lock.
type Machine[T any] struct {
	mu          sync.Mutex
	fetch       Fetcher[T]
	state       State[T]
	inFlight    bool
	initialized bool
	now         func() time.Time
}

func NewMachine[T any](fetch Fetcher[T]) *Machine[T] {
	return &Machine[T]{
		fetch: fetch,
		state: loadingState[T](),
		now:   time.Now,
	}
}

// State returns the current state.
func (m *Machine[T]) State() State[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InFlight reports whether a fetch is running.
func (m *Machine[T]) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Initialize runs the first fetch. Later calls return the current state
// without fetching again.
func (m *Machine[T]) Initialize(ctx context.Context) (State[T], error) {
	m.mu.Lock()
	if m.initialized && !m.inFlight {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()
	return m.run(ctx, m.fetch, nil)
}

// Refresh re-fetches from any settled state.
func (m *Machine[T]) Refresh(ctx context.Context) (State[T], error) {
	return m.run(ctx, m.fetch, nil)
}

// Retry re-fetches after a failure. It returns ErrNotFailed in any other state.
func (m *Machine[T]) Retry(ctx context.Context) (State[T], error) {
	m.mu.Lock()
	if m.state.phase != Failed {
		st := m.state
		inFlight := m.inFlight
		m.mu.Unlock()
		if inFlight {
			return st, ErrFetchInFlight
		}
		return st, ErrNotFailed
	}
	m.mu.Unlock()
	return m.run(ctx, m.fetch, nil)
}

// run enters Loading, fetches and settles in Ready or Failed. A call made
// while another fetch is running returns ErrFetchInFlight without fetching.
// onStart runs under the lock once the fetch is admitted.
func (m *Machine[T]) run(ctx context.Context, fetch Fetcher[T], onStart func()) (State[T], error) {
	m.mu.Lock()
	if m.inFlight {
		st := m.state
		m.mu.Unlock()
		return st, ErrFetchInFlight
	}
	m.inFlight = true
	m.initialized = true
	m.state = loadingState[T]()
	if onStart != nil {
		onStart()
	}
	m.mu.Unlock()

	data, err := fetch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		m.state = failedState[T](err)
	} else {
		m.state = readyState(data, m.now())
	}
	return m.state, nil
}
