package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
)

type fakeReporter struct {
	mu   sync.Mutex
	errs []*deterr.DetError
}

func (r *fakeReporter) Handle(_ context.Context, err error, opts ...deterr.Option) *deterr.DetError {
	r.mu.Lock()
	defer r.mu.Unlock()
	de := deterr.New(err, opts...)
	r.errs = append(r.errs, de)
	return de
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// gate is a fetcher that blocks until released.
type gate struct {
	calls   atomic.Int32
	release chan struct{}
	value   int
	err     error
}

func newGate(value int) *gate {
	return &gate{release: make(chan struct{}), value: value}
}

func (g *gate) fetch(ctx context.Context, _ string) (int, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return g.value, g.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type result struct {
	v   int
	err error
}

func fetchAsync(ctx context.Context, s *Store[string, int], key string) <-chan result {
	out := make(chan result, 1)
	go func() {
		v, err := s.Fetch(ctx, key)
		out <- result{v, err}
	}()
	return out
}

func counter(t *testing.T, s *Store[string, int], res string) float64 {
	t.Helper()
	return testutil.ToFloat64(s.metrics.fetches.WithLabelValues(s.Name(), res))
}

func newTestStore(fetch Fetcher[string, int], r deterr.Reporter) *Store[string, int] {
	return New("numbers", fetch,
		WithReporter[string, int](r, deterr.WithPublicSubject("Unable to fetch numbers")),
		WithMetrics[string, int](prometheus.NewRegistry()),
	)
}

func TestFetchSuccess(t *testing.T) {
	rep := &fakeReporter{}
	s := newTestStore(func(_ context.Context, key string) (int, error) { return len(key), nil }, rep)

	var seen []loadable.Loadable[int]
	unsubscribe := s.Subscribe("abc", func(l loadable.Loadable[int]) { seen = append(seen, l) })
	defer unsubscribe()

	assert.True(t, s.Get("abc").IsNotLoaded())

	v, err := s.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, loadable.Loaded(3), s.Get("abc"))
	assert.Equal(t, []loadable.Loadable[int]{loadable.Loaded(3)}, seen, "subscribers run before Fetch returns")
	assert.False(t, s.Pending("abc"))
	assert.Zero(t, rep.count())
	assert.InDelta(t, 1, counter(t, s, resultOK), 0)
}

func TestFetchCoalesces(t *testing.T) {
	g := newGate(7)
	s := newTestStore(g.fetch, &fakeReporter{})

	results := []<-chan result{
		fetchAsync(context.Background(), s, "k"),
		fetchAsync(context.Background(), s, "k"),
		fetchAsync(context.Background(), s, "k"),
	}
	require.Eventually(t, func() bool { return counter(t, s, resultCoalesced) == 2 }, time.Second, time.Millisecond)
	assert.True(t, s.Pending("k"))

	close(g.release)
	for _, ch := range results {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, 7, r.v)
	}
	assert.Equal(t, int32(1), g.calls.Load())
	assert.False(t, s.Pending("k"))
}

func TestFetchFailureKeepsPriorValue(t *testing.T) {
	rep := &fakeReporter{}
	boom := errors.New("master unreachable")
	s := newTestStore(func(context.Context, string) (int, error) { return 0, boom }, rep)
	s.Set("k", 1)

	notified := 0
	s.Subscribe("k", func(loadable.Loadable[int]) { notified++ })

	_, err := s.Fetch(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var de *deterr.DetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Unable to fetch numbers", de.PublicSubject)

	assert.Equal(t, loadable.Loaded(1), s.Get("k"))
	assert.Zero(t, notified)
	assert.Equal(t, 1, rep.count())
	assert.InDelta(t, 1, counter(t, s, resultError), 0)
}

func TestFetchCancelled(t *testing.T) {
	rep := &fakeReporter{}
	g := newGate(1)
	s := newTestStore(g.fetch, rep)

	ctx, cancel := context.WithCancel(context.Background())
	ch := fetchAsync(ctx, s, "k")
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	r := <-ch
	assert.ErrorIs(t, r.err, context.Canceled)

	require.Eventually(t, func() bool { return counter(t, s, resultCancelled) == 1 }, time.Second, time.Millisecond)
	assert.False(t, s.Pending("k"))
	assert.True(t, s.Get("k").IsNotLoaded())
	assert.Zero(t, rep.count())

	t.Run("already cancelled context never fetches", func(t *testing.T) {
		_, err := s.Fetch(ctx, "other")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), g.calls.Load())
	})
}

func TestLateResponseToCancelledFetchIsDropped(t *testing.T) {
	rep := &fakeReporter{}
	var started atomic.Bool
	s := newTestStore(func(ctx context.Context, _ string) (int, error) {
		started.Store(true)
		<-ctx.Done()
		// the body arrived anyway
		return 42, nil
	}, rep)

	var notified atomic.Int32
	unsubscribe := s.Subscribe("k", func(loadable.Loadable[int]) { notified.Add(1) })
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	ch := fetchAsync(ctx, s, "k")
	require.Eventually(t, started.Load, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, (<-ch).err, context.Canceled)

	require.Eventually(t, func() bool { return counter(t, s, resultCancelled) == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Get("k").IsNotLoaded())
	assert.Zero(t, notified.Load())
	assert.False(t, s.Pending("k"))
	assert.Zero(t, rep.count())
	assert.Zero(t, counter(t, s, resultOK))
}

func TestSiblingSurvivesCancellation(t *testing.T) {
	var fetchCtxErr atomic.Value
	release := make(chan struct{})
	s := newTestStore(func(ctx context.Context, _ string) (int, error) {
		<-release
		fetchCtxErr.Store(ctx.Err() == nil)
		return 42, nil
	}, &fakeReporter{})

	ctx, cancel := context.WithCancel(context.Background())
	leaving := fetchAsync(ctx, s, "k")
	staying := fetchAsync(context.Background(), s, "k")
	require.Eventually(t, func() bool { return counter(t, s, resultCoalesced) == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, (<-leaving).err, context.Canceled)

	close(release)
	r := <-staying
	require.NoError(t, r.err)
	assert.Equal(t, 42, r.v)
	assert.Equal(t, true, fetchCtxErr.Load(), "shared request must outlive one waiter")
	assert.Equal(t, loadable.Loaded(42), s.Get("k"))
}

func TestSupersededResponseIsDropped(t *testing.T) {
	g := newGate(1)
	s := newTestStore(g.fetch, &fakeReporter{})

	ch := fetchAsync(context.Background(), s, "k")
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Set("k", 99)
	close(g.release)

	r := <-ch
	require.NoError(t, r.err)
	assert.Equal(t, 1, r.v)
	assert.Equal(t, loadable.Loaded(99), s.Get("k"))
	assert.InDelta(t, 1, counter(t, s, resultStale), 0)
}

func TestEnsure(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, &fakeReporter{})

	v, err := s.Ensure(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = s.Ensure(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = s.Fetch(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(func(context.Context, string) (int, error) { return 0, nil }, nil)
	s.Set("a", 1)
	s.Set("b", 2)
	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())

	var last loadable.Loadable[int]
	s.Subscribe("a", func(l loadable.Loadable[int]) { last = l })

	s.Invalidate("a")
	assert.True(t, last.IsNotLoaded())
	assert.True(t, s.Get("a").IsNotLoaded())

	s.InvalidateAll()
	assert.True(t, s.Get("b").IsNotLoaded())
}

func TestAwaitStoreEntry(t *testing.T) {
	s := newTestStore(func(context.Context, string) (int, error) { return 5, nil }, nil)

	done := make(chan int, 1)
	go func() {
		v, err := loadable.Await[int](context.Background(), s.Observe("k"))
		if err == nil {
			done <- v
		}
	}()

	_, err := s.Fetch(context.Background(), "k")
	require.NoError(t, err)

	select {
	case v := <-done:
		assert.Equal(t, 5, v)
	case <-time.After(time.Second):
		t.Fatal("Await did not observe the fetch")
	}
}

func TestNilReporterStillReturnsError(t *testing.T) {
	s := New("plain", func(context.Context, string) (int, error) { return 0, errors.New("boom") })
	_, err := s.Fetch(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plain k: boom")
	assert.Nil(t, s.metrics)
}

func TestSingle(t *testing.T) {
	var calls atomic.Int32
	s := NewSingle("users", func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"admin", "det"}, nil
	})

	var seen int
	s.Subscribe(func(l loadable.Loadable[[]string]) {
		seen = len(loadable.GetOrElse([]string(nil), l))
	})

	assert.True(t, s.Get().IsNotLoaded())
	assert.False(t, s.Pending())

	v, err := s.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "det"}, v)
	assert.Equal(t, 2, seen)

	_, err = s.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	s.Invalidate()
	assert.True(t, s.Observe().Get().IsNotLoaded())
	s.Set([]string{"x"})
	assert.Equal(t, 1, seen)
	assert.Equal(t, "users", s.Name())
	assert.Equal(t, []struct{}{{}}, s.Store().Keys())
}
