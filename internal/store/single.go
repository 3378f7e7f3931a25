package store

import (
	"context"

	"github.com/rshade/detconsole/internal/loadable"
	"github.com/rshade/detconsole/internal/observable"
)

// Single is a Store with exactly one entry, for collections such as "all
// users" or "the current user".
type Single[V any] struct {
	s *Store[struct{}, V]
}

// NewSingle creates a single-entry store.
func NewSingle[V any](name string, fetch func(ctx context.Context) (V, error), opts ...Option[struct{}, V]) *Single[V] {
	opts = append([]Option[struct{}, V]{WithKeyFunc[struct{}, V](func(struct{}) string { return "" })}, opts...)
	return &Single[V]{s: New[struct{}, V](name, func(ctx context.Context, _ struct{}) (V, error) { return fetch(ctx) }, opts...)}
}

// Name returns the store name.
func (s *Single[V]) Name() string { return s.s.Name() }

// Get returns the cached value.
func (s *Single[V]) Get() loadable.Loadable[V] { return s.s.Get(struct{}{}) }

// Fetch loads the value. See Store.Fetch.
func (s *Single[V]) Fetch(ctx context.Context) (V, error) { return s.s.Fetch(ctx, struct{}{}) }

// Ensure fetches only when NotLoaded.
func (s *Single[V]) Ensure(ctx context.Context) (V, error) { return s.s.Ensure(ctx, struct{}{}) }

// Set stores v.
func (s *Single[V]) Set(v V) { s.s.Set(struct{}{}, v) }

// Invalidate resets the entry to NotLoaded.
func (s *Single[V]) Invalidate() { s.s.Invalidate(struct{}{}) }

// Pending reports whether a fetch is in flight.
func (s *Single[V]) Pending() bool { return s.s.Pending(struct{}{}) }

// Observe returns the observable entry.
func (s *Single[V]) Observe() observable.Readable[loadable.Loadable[V]] {
	return s.s.Observe(struct{}{})
}

// Subscribe calls fn on every change.
func (s *Single[V]) Subscribe(fn func(loadable.Loadable[V])) (unsubscribe func()) {
	return s.s.Subscribe(struct{}{}, fn)
}

// Store exposes the underlying keyed store.
func (s *Single[V]) Store() *Store[struct{}, V] { return s.s }
