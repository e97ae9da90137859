// SPDX-License-Identifier: MIT

package pool

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

type (
	// Shared is a reference-counted cache of live resources keyed by identity.
	// The first Acquire for a key starts creation exactly once; concurrent
	// acquirers await the same in-flight creation. The resource is destroyed
	// exactly once, asynchronously, when the last holder releases it.
	Shared[K comparable, V any] struct {
		create  func(ctx context.Context, key K) (V, error)
		destroy func(value V)
		mx      sync.Mutex
		entries map[K]*entry[V]
	}

	entry[V any] struct {
		done      chan struct{}
		value     V
		err       error
		refs      int
		abandoned bool
	}
)

func NewShared[K comparable, V any](create func(ctx context.Context, key K) (V, error), destroy func(value V)) *Shared[K, V] {
	return &Shared[K, V]{
		create:  create,
		destroy: destroy,
		entries: make(map[K]*entry[V]),
	}
}

// Acquire returns the shared resource for key, creating it on first use.
// The returned release function must be called exactly once on every exit
// path; it never blocks on resource teardown.
func (s *Shared[K, V]) Acquire(ctx context.Context, key K) (value V, release func(), err error) {
	s.mx.Lock()
	e, found := s.entries[key]
	if !found {
		e = &entry[V]{done: make(chan struct{}), refs: 1}
		s.entries[key] = e
		// Creation is owned by the pool, not by whoever happened to acquire
		// first: cancelling one caller must not fail the other waiters.
		go s.runCreate(context.WithoutCancel(ctx), key, e)
	} else {
		e.refs++
	}
	s.mx.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		s.dropRef(key, e)

		return value, nil, errors.Wrap(ctx.Err(), "context done while awaiting shared resource creation")
	}

	if e.err != nil {
		s.dropRef(key, e)

		return value, nil, e.err
	}

	var once sync.Once

	return e.value, func() { once.Do(func() { s.dropRef(key, e) }) }, nil
}

func (s *Shared[K, V]) runCreate(ctx context.Context, key K, e *entry[V]) {
	value, err := s.create(ctx, key)

	s.mx.Lock()
	e.value, e.err = value, err
	close(e.done)
	destroyNow := e.abandoned && e.refs == 0 && err == nil
	if e.abandoned && e.refs == 0 {
		s.removeLocked(key, e)
	}
	s.mx.Unlock()

	if destroyNow {
		s.destroy(value)
	}
}

func (s *Shared[K, V]) dropRef(key K, e *entry[V]) {
	s.mx.Lock()
	e.refs--
	if e.refs > 0 {
		s.mx.Unlock()

		return
	}

	select {
	case <-e.done:
	default:
		// Creation is still in flight; the creator tears down at completion.
		e.abandoned = true
		s.mx.Unlock()

		return
	}

	s.removeLocked(key, e)
	failed := e.err != nil
	s.mx.Unlock()

	if !failed {
		// The entry is already gone from the map, so a concurrent Acquire
		// for the same key starts a fresh resource instead of observing
		// this one mid-teardown.
		go s.destroy(e.value)
	}
}

func (s *Shared[K, V]) removeLocked(key K, e *entry[V]) {
	if current, found := s.entries[key]; found && current == e {
		delete(s.entries, key)
	}
}

// Len reports the number of live (or in-flight) entries.
func (s *Shared[K, V]) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()

	return len(s.entries)
}
