// Package wait watches a task's event stream until the task is ready to be
// opened or has terminated.
package wait

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rshade/detconsole/internal/logging"
)

// Task states carried in event snapshots.
const (
	StateRunning     = "RUNNING"
	StateTerminating = "TERMINATING"
	StateTerminated  = "TERMINATED"
)

// DefaultMaxElapsed bounds how long Watch keeps reconnecting.
const DefaultMaxElapsed = 2 * time.Minute

// Outcome is how a watch ended.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeReady
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrTerminated is returned when the task ends before becoming ready.
	ErrTerminated = errors.New("task terminated")
	// ErrRejected is returned when the master refuses the stream handshake.
	ErrRejected = errors.New("event stream rejected")
)

// Snapshot is the task state pushed by the master.
type Snapshot struct {
	State   string `json:"state"`
	IsReady bool   `json:"is_ready"`
}

type event struct {
	Snapshot *Snapshot `json:"snapshot"`
}

type watcher struct {
	token      string
	onState    func(Snapshot)
	maxElapsed time.Duration
	initial    time.Duration
	dialer     *websocket.Dialer
	logger     zerolog.Logger
}

// Option configures Watch.
type Option func(*watcher)

// WithToken authenticates the stream with a bearer header and auth cookie.
func WithToken(token string) Option {
	return func(w *watcher) { w.token = token }
}

// WithOnState is called for every snapshot received, terminal ones included.
func WithOnState(fn func(Snapshot)) Option {
	return func(w *watcher) { w.onState = fn }
}

// WithMaxElapsed bounds the total time spent reconnecting.
func WithMaxElapsed(d time.Duration) Option {
	return func(w *watcher) { w.maxElapsed = d }
}

// WithInitialInterval sets the first reconnect delay.
func WithInitialInterval(d time.Duration) Option {
	return func(w *watcher) { w.initial = d }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(w *watcher) { w.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *watcher) { w.logger = l }
}

// Watch follows the event stream at eventURL. It returns OutcomeReady once
// the task is running and ready, or OutcomeTerminated with ErrTerminated.
// Dropped connections are retried with exponential backoff; ctx ends the
// watch immediately.
func Watch(ctx context.Context, eventURL string, opts ...Option) (Outcome, error) {
	w := &watcher{
		maxElapsed: DefaultMaxElapsed,
		initial:    500 * time.Millisecond,
		dialer:     websocket.DefaultDialer,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(w)
	}
	w.logger = logging.ComponentLogger(w.logger, "wait")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = w.maxElapsed
	b.RandomizationFactor = 0.1

	outcome := OutcomeUnknown
	err := backoff.RetryNotify(func() error {
		o, err := w.watchOnce(ctx, eventURL)
		switch {
		case err == nil:
			outcome = o
			return nil
		case errors.Is(err, ErrTerminated):
			outcome = o
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, ErrRejected):
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		w.logger.Debug().Err(err).Dur("retry_in", next).Msg("event stream dropped")
	})
	return outcome, err
}

func (w *watcher) watchOnce(ctx context.Context, eventURL string) (Outcome, error) {
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
		header.Set("Cookie", (&http.Cookie{Name: "auth", Value: w.token}).String())
	}

	conn, resp, err := w.dialer.DialContext(ctx, eventURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
				return OutcomeUnknown, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
			}
		}
		return OutcomeUnknown, fmt.Errorf("dialing %s: %w", eventURL, err)
	}
	defer conn.Close()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeUnknown, ctx.Err()
			}
			return OutcomeUnknown, fmt.Errorf("reading events: %w", err)
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			w.logger.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		if ev.Snapshot == nil {
			continue
		}

		snap := *ev.Snapshot
		w.logger.Debug().Str("state", snap.State).Bool("ready", snap.IsReady).Msg("task state")
		if w.onState != nil {
			w.onState(snap)
		}

		switch {
		case snap.State == StateRunning && snap.IsReady:
			return OutcomeReady, nil
		case snap.State == StateTerminated, snap.State == StateTerminating:
			return OutcomeTerminated, fmt.Errorf("%w: %s", ErrTerminated, strings.ToLower(snap.State))
		}
	}
}

// EventURL derives the websocket event stream of a task from the master URL:
// ws(s)://<master>/<kind>s/<id>/events?tail=1.
func EventURL(master, kind, id string) (string, error) {
	u, err := parseMaster(master)
	if err != nil {
		return "", err
	}
	if kind == "" || id == "" {
		return "", errors.New("task kind and id are required")
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(kind) + "s/" + url.PathEscape(id) + "/events"
	u.RawQuery = "tail=1"
	return u.String(), nil
}

// JumpURL is where a ready task is served: <master>/proxy/<id>/.
func JumpURL(master, id string) (string, error) {
	u, err := parseMaster(master)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/proxy/" + url.PathEscape(id) + "/"
	u.RawQuery = ""
	return u.String(), nil
}

func parseMaster(master string) (*url.URL, error) {
	if master == "" {
		return nil, errors.New("master URL is empty")
	}
	if !strings.Contains(master, "://") {
		master = "http://" + master
	}
	u, err := url.Parse(master)
	if err != nil {
		return nil, fmt.Errorf("invalid master URL %q: %w", master, err)
	}
	return u, nil
}
