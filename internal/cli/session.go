package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/analytics"
	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/config"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/logging"
	"github.com/rshade/detconsole/internal/storage"
	"github.com/rshade/detconsole/internal/stores"
)

// session is everything a master-facing command needs: a client carrying
// the saved token, the error handler and the stores built on both.
type session struct {
	cfg      *config.Config
	client   *api.Client
	files    *storage.FileStore
	tokens   *storage.TokenStore
	registry *prometheus.Registry
	handler  *deterr.Handler
	svc      *stores.Services
	logger   zerolog.Logger
}

// newSession builds a session for cmd. path is where the command sits for
// the error handler's auth redirect; hopts override the default stderr
// notifier and token-clearing navigator.
func newSession(cmd *cobra.Command, opts *rootOptions, path string, hopts ...deterr.HandlerOption) (*session, error) {
	cfg := opts.settings()
	log := *logging.FromContext(cmd.Context())

	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFileStore(dir, cfg.Storage.Enabled, cfg.Storage.TTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	tokens := storage.NewTokenStore(files)

	clientOpts := []api.Option{
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithLogger(log),
	}
	if cfg.Master.CertFile != "" {
		clientOpts = append(clientOpts, api.WithCAFile(cfg.Master.CertFile))
	}
	client, err := api.NewClient(cfg.Master.URL, clientOpts...)
	if err != nil {
		return nil, deterr.New(err,
			deterr.WithType(deterr.TypeInput),
			deterr.WithPublicSubject("Invalid master settings"))
	}

	master := client.BaseURL().String()
	var username string
	saved, err := tokens.Session(master)
	switch {
	case err == nil:
		client.SetToken(saved.Token)
		username = saved.Username
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrDisabled):
	default:
		log.Warn().Err(err).Str("master", master).Msg("ignoring saved session")
	}

	registry := prometheus.NewRegistry()
	handlerOpts := []deterr.HandlerOption{
		deterr.WithNotifier(deterr.WriterNotifier{W: cmd.ErrOrStderr()}),
		deterr.WithNavigator(&cliNavigator{path: path, w: cmd.ErrOrStderr(), tokens: tokens, master: master}),
		deterr.WithSink(analytics.NewPromSink(registry, log)),
		deterr.WithLogger(log),
		deterr.WithPaths(cfg.Console.LoginPath, cfg.Console.LogoutPath),
		deterr.WithDevMode(cfg.Dev),
	}
	handler := deterr.NewHandler(append(handlerOpts, hopts...)...)

	svc := stores.New(client, handler,
		stores.WithStorage(files),
		stores.WithUser(username),
		stores.WithLogger(log),
		stores.WithMetrics(registry),
	)

	return &session{
		cfg:      cfg,
		client:   client,
		files:    files,
		tokens:   tokens,
		registry: registry,
		handler:  handler,
		svc:      svc,
		logger:   log,
	}, nil
}

// Close stops background work.
func (s *session) Close() {
	s.svc.Close()
}

// report hands err to the error handler unless a store already did.
// Cancellations come back unchanged.
func (s *session) report(ctx context.Context, err error, opts ...deterr.Option) error {
	if err == nil {
		return nil
	}
	var de *deterr.DetError
	if errors.As(err, &de) && de.Handled() {
		return de
	}
	if handled := s.handler.Handle(ctx, err, opts...); handled != nil {
		return handled
	}
	return err
}

// cliNavigator turns the handler's logout redirect into a cleared token and
// a hint on stderr.
type cliNavigator struct {
	mu     sync.Mutex
	path   string
	w      io.Writer
	tokens *storage.TokenStore
	master string
}

// CurrentPath implements deterr.Navigator.
func (n *cliNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Navigate implements deterr.Navigator.
func (n *cliNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path

	forgetToken(n.tokens, n.master)
	_, _ = fmt.Fprintln(n.w, "Session expired. Run 'detconsole login' to sign in again.")
}

// forgetToken drops the saved session for master. A missing or disabled
// store is not a failure.
func forgetToken(tokens *storage.TokenStore, master string) {
	if err := tokens.ClearToken(master); err != nil &&
		!errors.Is(err, storage.ErrDisabled) && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Str("master", master).Msg("failed to clear saved session")
	}
}
