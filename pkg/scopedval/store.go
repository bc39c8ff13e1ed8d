// Package scopedval provides flow-scoped value propagation.
//
// A flow is one logical chain of work — typically a request — carried by a
// context.Context. Values written into a Store are visible to every
// continuation of the flow that holds the bound context, and invisible to
// unrelated flows. Child tasks spawned from a flow receive a snapshot of the
// parent's values at spawn time via Branch (or share the parent's state,
// depending on the propagation strategy the Store was constructed with).
package scopedval

import (
	"context"
	"sync"

	"github.com/stratumhq/dbflow/pkg/apperrors"
)

// Propagation selects how Branch hands flow state to child tasks.
type Propagation int

const (
	// PropagateSnapshot copies the flow state at Branch time. Later
	// mutations by the child are not seen by the parent and vice versa.
	PropagateSnapshot Propagation = iota

	// PropagateShared hands the child the same state as the parent.
	// Mutations on either side are visible to both.
	PropagateShared
)

// Config controls Store behavior.
type Config[T any] struct {
	// Propagation selects the Branch strategy. Defaults to PropagateSnapshot.
	Propagation Propagation

	// Clone, if set, is used to deep-copy values when Branch snapshots the
	// flow state. Required for pointer-valued stores that want true
	// copy-on-branch semantics; when nil, values are copied by assignment.
	Clone func(T) T
}

// Store propagates per-flow values of type T.
//
// Each Store instance uses its own context key, so independent stores never
// collide even when they carry the same value type. The set of named slot
// keys ever written is shared across all flows of a Store and never shrinks;
// the values themselves are isolated per flow.
type Store[T any] struct {
	cfg Config[T]
	key *flowKey

	mu    sync.Mutex
	names map[string]struct{}
}

// flowKey is pointer-compared as the context key. It must not be zero-sized
// or distinct Store instances could share a key.
type flowKey struct{ _ byte }

// flowState is the per-flow storage. A flow is logically single-threaded,
// but Go lets two goroutines share one bound context, so state access is
// guarded by a mutex rather than relying on caller discipline.
type flowState[T any] struct {
	mu         sync.Mutex
	current    T
	hasCurrent bool
	named      map[string]T
}

// New creates a Store with the given configuration. The zero Config is valid.
func New[T any](cfg Config[T]) *Store[T] {
	return &Store[T]{
		cfg:   cfg,
		key:   &flowKey{},
		names: make(map[string]struct{}),
	}
}

// Bind starts a new flow: the returned context carries fresh, empty state.
// Values set on the parent context (if it was itself bound) are not carried
// over; use Branch for that.
func (s *Store[T]) Bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, s.key, &flowState[T]{named: make(map[string]T)})
}

// Branch derives the context a child task should run under. Under
// PropagateSnapshot the child receives a copy of the flow state as of the
// call; under PropagateShared it shares the parent's state. An unbound
// context starts a fresh flow, matching the "new top-level task starts
// fresh" contract.
func (s *Store[T]) Branch(ctx context.Context) context.Context {
	st := s.state(ctx)
	if st == nil {
		return s.Bind(ctx)
	}
	if s.cfg.Propagation == PropagateShared {
		return ctx
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	child := &flowState[T]{
		current:    s.clone(st.current),
		hasCurrent: st.hasCurrent,
		named:      make(map[string]T, len(st.named)),
	}
	for k, v := range st.named {
		child.named[k] = s.clone(v)
	}
	return context.WithValue(ctx, s.key, child)
}

// Bound reports whether ctx carries flow state for this Store.
func (s *Store[T]) Bound(ctx context.Context) bool {
	return s.state(ctx) != nil
}

// Current returns the flow's default-slot value. An unbound context or a
// flow that never wrote the default slot yields the zero value.
func (s *Store[T]) Current(ctx context.Context) T {
	var zero T
	st := s.state(ctx)
	if st == nil {
		return zero
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

// SetCurrent writes the flow's default-slot value. Writing to an unbound
// context is a programming error and fails with apperrors.ErrNoFlow.
func (s *Store[T]) SetCurrent(ctx context.Context, v T) error {
	st := s.state(ctx)
	if st == nil {
		return apperrors.ErrNoFlow
	}
	st.mu.Lock()
	st.current = v
	st.hasCurrent = true
	st.mu.Unlock()
	return nil
}

// CurrentOrInit returns the flow's default-slot value, initializing it with
// init on first read so that subsequent reads in the same flow observe the
// same value. On an unbound context the initializer's result is returned
// without being stored.
func (s *Store[T]) CurrentOrInit(ctx context.Context, init func() T) T {
	st := s.state(ctx)
	if st == nil {
		return init()
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.hasCurrent {
		st.current = init()
		st.hasCurrent = true
	}
	return st.current
}

// Set writes a named slot for the calling flow. The slot name is registered
// process-wide (registration is shared across flows and synchronized); the
// value is visible only within this flow.
func (s *Store[T]) Set(ctx context.Context, key string, v T) error {
	if key == "" {
		return apperrors.ErrEmptyKey
	}
	st := s.state(ctx)
	if st == nil {
		return apperrors.ErrNoFlow
	}

	s.mu.Lock()
	s.names[key] = struct{}{}
	s.mu.Unlock()

	st.mu.Lock()
	st.named[key] = v
	st.mu.Unlock()
	return nil
}

// Get reads a named slot for the calling flow. Unknown keys and keys this
// flow never wrote yield the zero value, never an error; only an empty key
// fails.
func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, apperrors.ErrEmptyKey
	}
	st := s.state(ctx)
	if st == nil {
		return zero, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.named[key], nil
}

// Clear resets the calling flow's default slot and every named slot to the
// zero value. Slot-name registrations are untouched, so a Get after Clear
// still succeeds with the zero value. Clearing an unbound context fails
// with apperrors.ErrNoFlow.
func (s *Store[T]) Clear(ctx context.Context) error {
	st := s.state(ctx)
	if st == nil {
		return apperrors.ErrNoFlow
	}
	var zero T
	st.mu.Lock()
	st.current = zero
	st.hasCurrent = false
	st.named = make(map[string]T)
	st.mu.Unlock()
	return nil
}

func (s *Store[T]) state(ctx context.Context) *flowState[T] {
	st, _ := ctx.Value(s.key).(*flowState[T])
	return st
}

func (s *Store[T]) clone(v T) T {
	if s.cfg.Clone == nil {
		return v
	}
	return s.cfg.Clone(v)
}
