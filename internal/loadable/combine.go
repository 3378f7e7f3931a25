package loadable

// Tuple2 is the payload of All2.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

// Tuple3 is the payload of All3.
type Tuple3[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Tuple4 is the payload of All4.
type Tuple4[A, B, C, D any] struct {
	First  A
	Second B
	Third  C
	Fourth D
}

// All2 is Loaded only when both inputs are loaded.
func All2[A, B any](a Loadable[A], b Loadable[B]) Loadable[Tuple2[A, B]] {
	if !a.loaded || !b.loaded {
		return NotLoaded[Tuple2[A, B]]()
	}
	return Loaded(Tuple2[A, B]{First: a.data, Second: b.data})
}

// All3 is Loaded only when all three inputs are loaded.
func All3[A, B, C any](a Loadable[A], b Loadable[B], c Loadable[C]) Loadable[Tuple3[A, B, C]] {
	if !a.loaded || !b.loaded || !c.loaded {
		return NotLoaded[Tuple3[A, B, C]]()
	}
	return Loaded(Tuple3[A, B, C]{First: a.data, Second: b.data, Third: c.data})
}

// All4 is Loaded only when all four inputs are loaded.
func All4[A, B, C, D any](
	a Loadable[A], b Loadable[B], c Loadable[C], d Loadable[D],
) Loadable[Tuple4[A, B, C, D]] {
	if !a.loaded || !b.loaded || !c.loaded || !d.loaded {
		return NotLoaded[Tuple4[A, B, C, D]]()
	}
	return Loaded(Tuple4[A, B, C, D]{First: a.data, Second: b.data, Third: c.data, Fourth: d.data})
}

// AllOf combines a homogeneous list. An empty list is Loaded with an empty slice.
func AllOf[T any](ls []Loadable[T]) Loadable[[]T] {
	out := make([]T, 0, len(ls))
	for _, l := range ls {
		if !l.loaded {
			return NotLoaded[[]T]()
		}
		out = append(out, l.data)
	}
	return Loaded(out)
}
