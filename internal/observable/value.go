// Package observable provides a thread-safe value cell that notifies
// subscribers whenever it is replaced.
package observable

import "sync"

// Readable exposes read-only observable state.
type Readable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// Writable exposes read/write observable state.
type Writable[T any] interface {
	Readable[T]
	Set(value T) bool
	Update(fn func(T) T) bool
}

// Option configures a Value.
type Option[T any] func(*Value[T])

// WithEqual makes Set skip notification when the new value equals the old one.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(v *Value[T]) {
		v.equal = eq
	}
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Value is an observable cell. Subscribers are called synchronously, in
// subscription order, outside the internal lock, once per accepted Set.
type Value[T any] struct {
	mu     sync.RWMutex
	value  T
	equal  func(a, b T) bool
	subs   []subscriber[T]
	nextID int
}

// New creates a Value holding initial.
func New[T any](initial T, opts ...Option[T]) *Value[T] {
	v := &Value[T]{value: initial}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the value and notifies subscribers. It reports whether the
// value was accepted (false only when an equality function says it is unchanged).
func (v *Value[T]) Set(value T) bool {
	v.mu.Lock()
	if v.equal != nil && v.equal(v.value, value) {
		v.mu.Unlock()
		return false
	}
	v.value = value
	subs := v.snapshotLocked()
	v.mu.Unlock()

	notify(subs, value)
	return true
}

// Update replaces the value with fn(current) atomically with respect to other
// writers and notifies subscribers.
func (v *Value[T]) Update(fn func(T) T) bool {
	v.mu.Lock()
	next := fn(v.value)
	if v.equal != nil && v.equal(v.value, next) {
		v.mu.Unlock()
		return false
	}
	v.value = next
	subs := v.snapshotLocked()
	v.mu.Unlock()

	notify(subs, next)
	return true
}

// Modify is Update with the option to decline: fn returns the next value and
// whether to store it. Nothing is notified when fn declines.
func (v *Value[T]) Modify(fn func(T) (T, bool)) bool {
	v.mu.Lock()
	next, ok := fn(v.value)
	if !ok {
		v.mu.Unlock()
		return false
	}
	v.value = next
	subs := v.snapshotLocked()
	v.mu.Unlock()

	notify(subs, next)
	return true
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { v.unsubscribe(id) })
	}
}

func (v *Value[T]) unsubscribe(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subs {
		if s.id == id {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}

func (v *Value[T]) snapshotLocked() []subscriber[T] {
	if len(v.subs) == 0 {
		return nil
	}
	out := make([]subscriber[T], len(v.subs))
	copy(out, v.subs)
	return out
}

func notify[T any](subs []subscriber[T], value T) {
	for _, s := range subs {
		s.fn(value)
	}
}
