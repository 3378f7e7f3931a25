package loadable

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLaws(t *testing.T) {
	inputs := map[string]Loadable[int]{
		"loaded":     Loaded(21),
		"not loaded": NotLoaded[int](),
		"zero value": {},
	}

	for name, l := range inputs {
		t.Run(name+" identity", func(t *testing.T) {
			assert.Equal(t, l, Map(l, func(x int) int { return x }))
		})

		t.Run(name+" composition", func(t *testing.T) {
			f := func(x int) int { return x * 2 }
			g := strconv.Itoa
			assert.Equal(t,
				Map(Map(l, f), g),
				Map(l, func(x int) string { return g(f(x)) }),
			)
		})
	}

	t.Run("fn not called when not loaded", func(t *testing.T) {
		called := false
		Map(NotLoaded[int](), func(x int) int { called = true; return x })
		assert.False(t, called)
	})

	t.Run("panics from fn propagate", func(t *testing.T) {
		assert.Panics(t, func() {
			Map(Loaded(1), func(int) int { panic("boom") })
		})
	})
}

func TestFlatMap(t *testing.T) {
	half := func(x int) Loadable[int] {
		if x%2 != 0 {
			return NotLoaded[int]()
		}
		return Loaded(x / 2)
	}

	assert.Equal(t, Loaded(2), FlatMap(Loaded(4), half))
	assert.True(t, FlatMap(Loaded(3), half).IsNotLoaded())
	assert.True(t, FlatMap(NotLoaded[int](), half).IsNotLoaded())
}

func TestGetOrElse(t *testing.T) {
	tests := []struct {
		name string
		l    Loadable[string]
		def  string
		want string
	}{
		{"loaded returns value", Loaded("v"), "d", "v"},
		{"loaded empty string is still the value", Loaded(""), "d", ""},
		{"not loaded returns default", NotLoaded[string](), "d", "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, GetOrElse(tt.def, tt.l))
			})
		})
	}
}

func TestMatch(t *testing.T) {
	t.Run("loaded runs only loaded branch", func(t *testing.T) {
		notLoadedCalls := 0
		got := Match(Loaded(3),
			func(x int) string { return "loaded " + strconv.Itoa(x) },
			func() string { notLoadedCalls++; return "not loaded" },
		)
		assert.Equal(t, "loaded 3", got)
		assert.Zero(t, notLoadedCalls)
	})

	t.Run("not loaded runs only not-loaded branch", func(t *testing.T) {
		loadedCalls := 0
		got := Match(NotLoaded[int](),
			func(int) string { loadedCalls++; return "loaded" },
			func() string { return "not loaded" },
		)
		assert.Equal(t, "not loaded", got)
		assert.Zero(t, loadedCalls)
	})

	t.Run("nil branch panics", func(t *testing.T) {
		assert.PanicsWithValue(t, ErrMissingBranch, func() {
			Match[int, string](Loaded(1), func(int) string { return "" }, nil)
		})
	})
}

func TestQuickMatch(t *testing.T) {
	assert.Equal(t, 4, QuickMatch(Loaded("four"), 0, func(s string) int { return len(s) }))
	assert.Equal(t, -1, QuickMatch(NotLoaded[string](), -1, func(s string) int { return len(s) }))
}

func TestAll(t *testing.T) {
	t.Run("short circuits on any not loaded", func(t *testing.T) {
		assert.True(t, AllOf([]Loadable[int]{Loaded(1), NotLoaded[int](), Loaded(3)}).IsNotLoaded())
		assert.True(t, All3(Loaded(1), NotLoaded[string](), Loaded(3.0)).IsNotLoaded())
		assert.True(t, All2(NotLoaded[int](), Loaded(2)).IsNotLoaded())
	})

	t.Run("all loaded", func(t *testing.T) {
		assert.Equal(t, Loaded([]int{1, 2}), AllOf([]Loadable[int]{Loaded(1), Loaded(2)}))
		assert.Equal(t,
			Loaded(Tuple2[int, string]{First: 1, Second: "two"}),
			All2(Loaded(1), Loaded("two")),
		)
		got, ok := All4(Loaded(1), Loaded("2"), Loaded(3.0), Loaded(true)).Get()
		require.True(t, ok)
		assert.Equal(t, Tuple4[int, string, float64, bool]{1, "2", 3.0, true}, got)
	})

	t.Run("empty list is loaded", func(t *testing.T) {
		got, ok := AllOf[int](nil).Get()
		require.True(t, ok)
		assert.Empty(t, got)
	})
}

func TestWaitFor(t *testing.T) {
	v, err := WaitFor(Loaded(7))
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = WaitFor(NotLoaded[int]())
	require.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, err, ErrSuspended)
}

func TestString(t *testing.T) {
	assert.Equal(t, "NotLoaded", NotLoaded[int]().String())
	assert.Equal(t, "Loaded(5)", Loaded(5).String())
}

// cell is a minimal Source used to exercise Await without the observable package.
type cell[T any] struct {
	mu   sync.Mutex
	v    Loadable[T]
	subs map[int]func(Loadable[T])
	next int
}

func (c *cell[T]) Get() Loadable[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *cell[T]) Subscribe(fn func(Loadable[T])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = map[int]func(Loadable[T]){}
	}
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *cell[T]) set(v Loadable[T]) {
	c.mu.Lock()
	c.v = v
	subs := make([]func(Loadable[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

func TestAwait(t *testing.T) {
	t.Run("returns immediately when loaded", func(t *testing.T) {
		c := &cell[int]{v: Loaded(1)}
		v, err := Await[int](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("blocks until loaded", func(t *testing.T) {
		c := &cell[int]{}
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.set(Loaded(9))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v, err := Await[int](ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 9, v)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		c := &cell[int]{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Await[int](ctx, c)
		assert.True(t, errors.Is(err, context.Canceled))

		c.mu.Lock()
		defer c.mu.Unlock()
		assert.Empty(t, c.subs, "subscription must be released")
	})
}
