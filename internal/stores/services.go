// Package stores wires the master's entities into observable single-flight
// stores. One Services value is built per process and passed to whoever
// renders or refreshes data.
package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
	"github.com/rshade/detconsole/internal/logging"
	"github.com/rshade/detconsole/internal/storage"
	"github.com/rshade/detconsole/internal/store"
)

// Services holds every store backed by one master.
type Services struct {
	CurrentUser   *store.Single[api.User]
	Users         *store.Single[[]api.User]
	Workspaces    *store.Single[[]api.Workspace]
	Workspace     *store.Store[int, api.Workspace]
	ResourcePools *store.Single[[]api.ResourcePool]
	Info          *store.Single[api.MasterInfo]
	Settings      *store.Single[[]api.UserSetting]

	client   *api.Client
	reporter deterr.Reporter
	storage  *storage.FileStore
	user     string
	logger   zerolog.Logger
	registry prometheus.Registerer

	mu     sync.Mutex
	stop   context.CancelFunc
	done   chan struct{}
	unsubs []func()
	closed bool
}

// Option configures Services.
type Option func(*Services)

// WithStorage persists user settings in fs.
func WithStorage(fs *storage.FileStore) Option {
	return func(s *Services) { s.storage = fs }
}

// WithUser names the user the saved session belongs to, until CurrentUser
// is loaded.
func WithUser(username string) Option {
	return func(s *Services) { s.user = username }
}

// WithLogger sets the logger shared by every store.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Services) { s.logger = l }
}

// WithMetrics registers store fetch counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Services) { s.registry = reg }
}

// New builds the stores. reporter receives every fetch failure.
func New(client *api.Client, reporter deterr.Reporter, opts ...Option) *Services {
	s := &Services{
		client:   client,
		reporter: reporter,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}

	s.CurrentUser = store.NewSingle("current-user", client.CurrentUser,
		singleOpts[api.User](s, "Unable to fetch current user")...)
	s.Users = store.NewSingle("users", client.Users,
		singleOpts[[]api.User](s, "Unable to fetch users")...)
	s.Workspaces = store.NewSingle("workspaces", func(ctx context.Context) ([]api.Workspace, error) {
		return client.Workspaces(ctx, false)
	}, singleOpts[[]api.Workspace](s, "Unable to fetch workspaces")...)
	s.Workspace = store.New("workspace", client.Workspace,
		store.WithReporter[int, api.Workspace](reporter, deterr.WithPublicSubject("Unable to fetch workspace")),
		store.WithLogger[int, api.Workspace](s.logger),
		store.WithKeyFunc[int, api.Workspace](strconv.Itoa),
		store.WithMetrics[int, api.Workspace](s.registry),
	)
	s.ResourcePools = store.NewSingle("resource-pools", client.ResourcePools,
		singleOpts[[]api.ResourcePool](s, "Unable to fetch resource pools")...)
	s.Info = store.NewSingle("master-info", client.MasterInfo,
		singleOpts[api.MasterInfo](s, "Unable to fetch master info")...)
	s.Settings = store.NewSingle("user-settings", s.fetchSettings,
		singleOpts[[]api.UserSetting](s, "Unable to fetch user settings")...)

	// a loaded workspace list also answers single-workspace lookups
	s.unsubs = append(s.unsubs, s.Workspaces.Subscribe(func(l loadable.Loadable[[]api.Workspace]) {
		for _, ws := range loadable.GetOrElse(nil, l) {
			s.Workspace.Set(ws.ID, ws)
		}
	}))

	s.restoreSettings()
	return s
}

func singleOpts[V any](s *Services, subject string) []store.Option[struct{}, V] {
	return []store.Option[struct{}, V]{
		store.WithReporter[struct{}, V](s.reporter, deterr.WithPublicSubject(subject)),
		store.WithLogger[struct{}, V](s.logger),
		store.WithMetrics[struct{}, V](s.registry),
	}
}

// Client returns the API client the stores fetch with.
func (s *Services) Client() *api.Client {
	return s.client
}

// FetchAll loads the dashboard stores concurrently. Each failure is reported
// by its own store; the first one is returned.
func (s *Services) FetchAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { _, err := s.ResourcePools.Fetch(ctx); return err })
	g.Go(func() error { _, err := s.Workspaces.Fetch(ctx); return err })
	g.Go(func() error { _, err := s.Users.Fetch(ctx); return err })
	g.Go(func() error { _, err := s.CurrentUser.Fetch(ctx); return err })
	return g.Wait()
}

// PoolByName looks a pool up in the loaded pool list. The result is NotLoaded
// until the list is loaded and nil when no pool has that name.
func (s *Services) PoolByName(name string) loadable.Loadable[*api.ResourcePool] {
	return loadable.Map(s.ResourcePools.Get(), func(pools []api.ResourcePool) *api.ResourcePool {
		for i := range pools {
			if pools[i].Name == name {
				return &pools[i]
			}
		}
		return nil
	})
}

// ErrVersionTooOld is wrapped by CheckVersion when the master is older than
// the configured minimum.
var ErrVersionTooOld = errors.New("master version too old")

// CheckVersion ensures the master info is loaded and compares its version
// against minVersion. An empty minVersion accepts any master. Development
// builds whose version does not parse are accepted with a debug line.
func (s *Services) CheckVersion(ctx context.Context, minVersion string) error {
	if minVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + minVersion)
	if err != nil {
		return deterr.New(fmt.Errorf("invalid minimum version %q: %w", minVersion, err),
			deterr.WithType(deterr.TypeInput),
			deterr.WithPublicSubject("Invalid minimum master version"))
	}

	info, err := s.Info.Ensure(ctx)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(info.Version)
	if err != nil {
		s.logger.Debug().Str("version", info.Version).Msg("master version is not semver, skipping check")
		return nil
	}
	if !constraint.Check(v) {
		return deterr.New(fmt.Errorf("%w: %s < %s", ErrVersionTooOld, v, minVersion),
			deterr.WithType(deterr.TypeServer),
			deterr.WithLevel(deterr.LevelWarning),
			deterr.WithPublicSubject("Unsupported master version"),
			deterr.WithPublicMessage(fmt.Sprintf("The master runs %s; detconsole needs %s or newer.", v, minVersion)))
	}
	return nil
}

// StartRefresh refetches every interval until Close or ctx ends. Errors are
// already reported by the stores and only logged here.
func (s *Services) StartRefresh(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || s.closed || interval <= 0 {
		return
	}

	ctx, s.stop = context.WithCancel(ctx)
	s.done = make(chan struct{})
	logger := logging.ComponentLogger(s.logger, "refresh")

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.FetchAll(ctx); err != nil && !store.IsCancelled(err) {
					logger.Debug().Err(err).Msg("refresh failed")
				}
			}
		}
	}()
}

// Logout ends the session on the master, forgets the saved token and empties
// every store.
func (s *Services) Logout(ctx context.Context, tokens *storage.TokenStore) error {
	settingsKey := s.settingsKey()
	err := s.client.Logout(ctx)
	if tokens != nil {
		if clearErr := tokens.ClearToken(s.client.BaseURL().String()); clearErr != nil &&
			!errors.Is(clearErr, storage.ErrDisabled) {
			err = errors.Join(err, clearErr)
		}
	}
	if s.storage != nil {
		if delErr := s.storage.Delete(settingsKey); delErr != nil &&
			!errors.Is(delErr, storage.ErrDisabled) && !errors.Is(delErr, storage.ErrNotFound) {
			err = errors.Join(err, delErr)
		}
	}

	s.CurrentUser.Invalidate()
	s.Users.Invalidate()
	s.Workspaces.Invalidate()
	s.Workspace.InvalidateAll()
	s.ResourcePools.Invalidate()
	s.Settings.Invalidate()
	return err
}

// Close stops the refresh loop and drops internal subscriptions.
// It is safe to call more than once.
func (s *Services) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop, done, unsubs := s.stop, s.done, s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	for _, u := range unsubs {
		u()
	}
}

func (s *Services) fetchSettings(ctx context.Context) ([]api.UserSetting, error) {
	settings, err := s.client.UserSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s.storage != nil && s.storage.IsEnabled() {
		if err := s.storage.SetJSON(s.settingsKey(), settings); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist user settings")
		}
	}
	return settings, nil
}

// restoreSettings seeds Settings from the last persisted copy.
func (s *Services) restoreSettings() {
	if s.storage == nil || !s.storage.IsEnabled() {
		return
	}
	var settings []api.UserSetting
	err := s.storage.GetJSON(s.settingsKey(), &settings)
	switch {
	case err == nil:
		s.Settings.Set(settings)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrExpired):
	default:
		s.logger.Warn().Err(fmt.Errorf("restoring user settings: %w", err)).Msg("ignoring stored settings")
	}
}

// settingsKey names the persisted settings of the user signed in to this
// master.
func (s *Services) settingsKey() string {
	user := s.user
	if u, ok := s.CurrentUser.Get().Get(); ok && u.Username != "" {
		user = u.Username
	}
	return storage.SettingsKey(s.client.BaseURL().String(), user)
}
