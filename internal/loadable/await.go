package loadable

import "context"

// Source is anything holding a Loadable that announces replacements.
// observable.Value[Loadable[T]] satisfies it.
type Source[T any] interface {
	Get() Loadable[T]
	Subscribe(fn func(Loadable[T])) (unsubscribe func())
}

// Await blocks until src holds a loaded value or ctx is done.
// It is the blocking counterpart of WaitFor.
func Await[T any](ctx context.Context, src Source[T]) (T, error) {
	if v, ok := src.Get().Get(); ok {
		return v, nil
	}

	ready := make(chan T, 1)
	unsubscribe := src.Subscribe(func(l Loadable[T]) {
		if v, ok := l.Get(); ok {
			select {
			case ready <- v:
			default:
			}
		}
	})
	defer unsubscribe()

	// the value may have landed between the first check and Subscribe
	if v, ok := src.Get().Get(); ok {
		return v, nil
	}

	select {
	case v := <-ready:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
