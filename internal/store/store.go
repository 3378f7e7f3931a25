// Package store provides a keyed cache of Loadable values that fetches each
// key at most once at a time and notifies subscribers when an entry changes.
//
// Policy, identical for every store:
//   - concurrent Fetch calls for one key share a single request;
//   - each caller may give up on its own; the shared request is cancelled
//     only when every caller has gone;
//   - every key carries a generation; Set, Invalidate and completed fetches
//     advance it, and a response that started under an older generation is
//     dropped instead of overwriting newer data;
//   - a failed fetch keeps the previous entry and is handed to the Reporter;
//   - a cancelled fetch neither touches the entry nor reaches the Reporter.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
	"github.com/rshade/detconsole/internal/logging"
	"github.com/rshade/detconsole/internal/observable"
)

// Fetch outcomes, used as metric labels.
const (
	resultOK        = "ok"
	resultError     = "error"
	resultCancelled = "cancelled"
	resultStale     = "stale"
	resultCoalesced = "coalesced"
)

// Fetcher loads the value for key.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Store caches one Loadable per key.
type Store[K comparable, V any] struct {
	name    string
	fetcher Fetcher[K, V]

	reporter   deterr.Reporter
	reportOpts []deterr.Option
	keyString  func(K) string
	logger     zerolog.Logger
	metrics    *metrics

	group singleflight.Group

	// mu guards entries and the generation and flight of every entry. It is
	// never held while calling into an observable.Value.
	mu      sync.Mutex
	entries map[K]*entry[V]
}

type entry[V any] struct {
	value  *observable.Value[loadable.Loadable[V]]
	gen    uint64
	flight *flight
}

// flight is the shared request for one key.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	refs   int
}

type outcome[V any] struct {
	value V
}

// Option configures a Store.
type Option[K comparable, V any] func(*Store[K, V])

// WithReporter sends fetch failures to r, built with opts.
func WithReporter[K comparable, V any](r deterr.Reporter, opts ...deterr.Option) Option[K, V] {
	return func(s *Store[K, V]) {
		s.reporter = r
		s.reportOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger[K comparable, V any](l zerolog.Logger) Option[K, V] {
	return func(s *Store[K, V]) { s.logger = l }
}

// WithKeyFunc sets how keys are rendered for request coalescing and logs.
// Two keys must render differently unless they are equal.
func WithKeyFunc[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(s *Store[K, V]) { s.keyString = fn }
}

// New creates a store named name that loads values with fetcher.
func New[K comparable, V any](name string, fetcher Fetcher[K, V], opts ...Option[K, V]) *Store[K, V] {
	s := &Store[K, V]{
		name:      name,
		fetcher:   fetcher,
		keyString: func(k K) string { return fmt.Sprint(k) },
		logger:    zerolog.Nop(),
		entries:   make(map[K]*entry[V]),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = logging.ComponentLogger(s.logger, "store").With().Str("store", name).Logger()
	return s
}

// Name returns the store name.
func (s *Store[K, V]) Name() string {
	return s.name
}

// Get returns the cached entry for key, NotLoaded when absent.
func (s *Store[K, V]) Get(key K) loadable.Loadable[V] {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return loadable.NotLoaded[V]()
	}
	return e.value.Get()
}

// Pending reports whether a request for key is in flight.
func (s *Store[K, V]) Pending(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.flight != nil
}

// Keys returns every key the store has an entry for, in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Observe returns the observable entry for key, creating it if needed.
func (s *Store[K, V]) Observe(key K) observable.Readable[loadable.Loadable[V]] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key).value
}

// Subscribe calls fn with every new Loadable stored under key.
func (s *Store[K, V]) Subscribe(key K, fn func(loadable.Loadable[V])) (unsubscribe func()) {
	return s.Observe(key).Subscribe(fn)
}

// Set stores v under key, superseding any request in flight.
func (s *Store[K, V]) Set(key K, v V) {
	s.replace(key, loadable.Loaded(v))
}

// Invalidate resets key to NotLoaded, superseding any request in flight.
func (s *Store[K, V]) Invalidate(key K) {
	s.replace(key, loadable.NotLoaded[V]())
}

// InvalidateAll resets every entry.
func (s *Store[K, V]) InvalidateAll() {
	for _, k := range s.Keys() {
		s.Invalidate(k)
	}
}

func (s *Store[K, V]) replace(key K, l loadable.Loadable[V]) {
	s.mu.Lock()
	e := s.entryLocked(key)
	s.mu.Unlock()

	e.value.Modify(func(loadable.Loadable[V]) (loadable.Loadable[V], bool) {
		s.mu.Lock()
		e.gen++
		s.mu.Unlock()
		return l, true
	})
}

// Ensure returns the cached value for key, fetching it only when NotLoaded.
func (s *Store[K, V]) Ensure(ctx context.Context, key K) (V, error) {
	if v, ok := s.Get(key).Get(); ok {
		return v, nil
	}
	return s.Fetch(ctx, key)
}

// Fetch loads key, joining a request already in flight for it. On failure
// the previous entry is kept and the error, already reported, is returned.
// When ctx ends first, ctx.Err() is returned and nothing else happens.
func (s *Store[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		s.count(resultCancelled)
		return zero, err
	}

	ks := s.keyString(key)

	s.mu.Lock()
	e := s.entryLocked(key)
	f := e.flight
	if f != nil && f.ctx.Err() != nil {
		// every waiter left; the old request is on its way out
		s.group.Forget(ks)
		f = nil
	}
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, gen: e.gen}
		e.flight = f
	} else {
		s.count(resultCoalesced)
	}
	f.refs++
	ch := s.group.DoChan(ks, func() (any, error) {
		return s.run(f, e, key, ks)
	})
	s.mu.Unlock()

	select {
	case res := <-ch:
		s.release(f)
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(outcome[V]).value, nil
	case <-ctx.Done():
		s.release(f)
		return zero, ctx.Err()
	}
}

// run performs the shared request. Exactly one run is active per flight.
func (s *Store[K, V]) run(f *flight, e *entry[V], key K, ks string) (any, error) {
	defer f.cancel()

	v, err := s.fetcher(f.ctx, key)

	if err != nil {
		s.mu.Lock()
		s.landLocked(f, e, ks)
		s.mu.Unlock()

		if f.ctx.Err() != nil || deterr.IsCancel(err) {
			s.count(resultCancelled)
			s.logger.Debug().Str("key", ks).Msg("fetch cancelled")
			return nil, context.Canceled
		}
		s.count(resultError)
		return nil, s.report(f.ctx, ks, err)
	}

	// The flight lands and the generation advances in the same critical
	// section as the write, so a Fetch started afterwards can never be
	// superseded by this response. A response for a request every waiter
	// gave up on is never written.
	var abandoned bool
	published := e.value.Modify(func(loadable.Loadable[V]) (loadable.Loadable[V], bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.landLocked(f, e, ks)
		if f.ctx.Err() != nil {
			abandoned = true
			return loadable.Loadable[V]{}, false
		}
		if e.gen != f.gen {
			return loadable.Loadable[V]{}, false
		}
		e.gen++
		return loadable.Loaded(v), true
	})
	if abandoned {
		s.count(resultCancelled)
		s.logger.Debug().Str("key", ks).Msg("dropping response to a cancelled fetch")
		return nil, context.Canceled
	}
	if !published {
		s.count(resultStale)
		s.logger.Debug().Str("key", ks).Msg("dropping superseded response")
		return outcome[V]{value: v}, nil
	}

	s.count(resultOK)
	return outcome[V]{value: v}, nil
}

// landLocked detaches f from its entry so the next Fetch starts afresh.
func (s *Store[K, V]) landLocked(f *flight, e *entry[V], ks string) {
	if e.flight == f {
		e.flight = nil
		s.group.Forget(ks)
	}
}

func (s *Store[K, V]) report(ctx context.Context, ks string, err error) error {
	var wrapped error
	if ks == "" {
		wrapped = fmt.Errorf("%s: %w", s.name, err)
	} else {
		wrapped = fmt.Errorf("%s %s: %w", s.name, ks, err)
	}
	if s.reporter == nil {
		s.logger.Error().Err(err).Str("key", ks).Msg("fetch failed")
		return wrapped
	}
	opts := append([]deterr.Option{deterr.WithPayload(map[string]any{"store": s.name, "key": ks})}, s.reportOpts...)
	if de := s.reporter.Handle(ctx, wrapped, opts...); de != nil {
		return de
	}
	return wrapped
}

// release drops one waiter from f and cancels the request when none remain.
func (s *Store[K, V]) release(f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.refs--
	if f.refs == 0 {
		f.cancel()
	}
}

func (s *Store[K, V]) entryLocked(key K) *entry[V] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[V]{value: observable.New(loadable.NotLoaded[V]())}
		s.entries[key] = e
	}
	return e
}

func (s *Store[K, V]) count(result string) {
	if s.metrics != nil {
		s.metrics.fetches.WithLabelValues(s.name, result).Inc()
	}
}

// IsCancelled reports whether err is the result of a Fetch that was given up.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
