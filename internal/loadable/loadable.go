// Package loadable provides a two-state container for data that may not have
// arrived from the master yet.
//
// A Loadable is either NotLoaded or Loaded with a fully-formed value. There is
// deliberately no Loading or Failed variant: "never requested" and "request in
// flight" are both NotLoaded, and fetch errors travel out of band through the
// deterr handler. Callers that need to know whether a request is in flight ask
// the owning store (store.Store.Pending).
package loadable

import (
	"errors"
	"fmt"
)

// Errors returned by WaitFor and Match.
var (
	// ErrSuspended signals that the caller should retry once data arrives.
	// It is not a failure.
	ErrSuspended = errors.New("loadable: suspended")

	// ErrNotLoaded is returned by WaitFor for a NotLoaded value. It wraps
	// ErrSuspended.
	ErrNotLoaded = fmt.Errorf("value not loaded: %w", ErrSuspended)

	// ErrMissingBranch is the panic value used when Match is called with a
	// nil branch.
	ErrMissingBranch = errors.New("loadable: match requires both branches")
)

// Loadable holds either nothing (NotLoaded) or a value (Loaded).
// The zero value is NotLoaded. Loadable values are immutable.
type Loadable[T any] struct {
	data   T
	loaded bool
}

// Loaded wraps v.
func Loaded[T any](v T) Loadable[T] {
	return Loadable[T]{data: v, loaded: true}
}

// NotLoaded returns the empty Loadable for T.
func NotLoaded[T any]() Loadable[T] {
	return Loadable[T]{}
}

// IsLoaded reports whether l carries a value.
func (l Loadable[T]) IsLoaded() bool {
	return l.loaded
}

// IsNotLoaded reports whether l is empty.
func (l Loadable[T]) IsNotLoaded() bool {
	return !l.loaded
}

// Get returns the value and true when loaded, the zero value and false otherwise.
func (l Loadable[T]) Get() (T, bool) {
	return l.data, l.loaded
}

// String renders the tag and, when loaded, the value.
func (l Loadable[T]) String() string {
	if !l.loaded {
		return "NotLoaded"
	}
	return fmt.Sprintf("Loaded(%v)", l.data)
}

// IsLoaded reports whether l carries a value.
func IsLoaded[T any](l Loadable[T]) bool {
	return l.loaded
}

// IsNotLoaded reports whether l is empty.
func IsNotLoaded[T any](l Loadable[T]) bool {
	return !l.loaded
}

// Map applies fn to a loaded value. NotLoaded passes through without calling fn.
// Panics from fn propagate to the caller.
func Map[T, U any](l Loadable[T], fn func(T) U) Loadable[U] {
	if !l.loaded {
		return NotLoaded[U]()
	}
	return Loaded(fn(l.data))
}

// FlatMap applies fn to a loaded value and flattens the result one level.
func FlatMap[T, U any](l Loadable[T], fn func(T) Loadable[U]) Loadable[U] {
	if !l.loaded {
		return NotLoaded[U]()
	}
	return fn(l.data)
}

// GetOrElse returns the loaded value or def. It never fails.
func GetOrElse[T any](def T, l Loadable[T]) T {
	if !l.loaded {
		return def
	}
	return l.data
}

// Match runs exactly one of the two branches depending on the tag and returns
// its result. Both branches must be non-nil; a nil branch panics with
// ErrMissingBranch even when it would not have been chosen.
func Match[T, R any](l Loadable[T], onLoaded func(T) R, onNotLoaded func() R) R {
	if onLoaded == nil || onNotLoaded == nil {
		panic(ErrMissingBranch)
	}
	if l.loaded {
		return onLoaded(l.data)
	}
	return onNotLoaded()
}

// QuickMatch returns fn(value) when loaded and def otherwise.
func QuickMatch[T, R any](l Loadable[T], def R, fn func(T) R) R {
	if !l.loaded {
		return def
	}
	return fn(l.data)
}

// Forget drops the value but keeps the tag.
func Forget[T any](l Loadable[T]) Loadable[struct{}] {
	return Map(l, func(T) struct{} { return struct{}{} })
}

// WaitFor returns the loaded value, or ErrNotLoaded when l is empty. Callers
// should treat ErrNotLoaded as "retry later" and check it with
// errors.Is(err, ErrSuspended).
func WaitFor[T any](l Loadable[T]) (T, error) {
	if !l.loaded {
		var zero T
		return zero, ErrNotLoaded
	}
	return l.data, nil
}
