package deterr

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rshade/detconsole/internal/analytics"
	"github.com/rshade/detconsole/internal/logging"
)

// Default navigation targets.
const (
	DefaultLoginPath  = "/login"
	DefaultLogoutPath = "/logout"
)

// Notification is what a Notifier shows the user.
type Notification struct {
	Level   Level
	Type    Type
	Subject string
	Message string
}

// Notifier displays notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// WriterNotifier prints notifications as single lines.
type WriterNotifier struct {
	W io.Writer
}

// Notify implements Notifier.
func (w WriterNotifier) Notify(_ context.Context, n Notification) {
	if n.Message == "" {
		_, _ = fmt.Fprintf(w.W, "%s: %s\n", strings.ToUpper(string(n.Level)), n.Subject)
		return
	}
	_, _ = fmt.Fprintf(w.W, "%s: %s: %s\n", strings.ToUpper(string(n.Level)), n.Subject, n.Message)
}

// Navigator knows where the user is and can send them somewhere else.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Reporter is the narrow interface used by code that only needs to hand
// errors over.
type Reporter interface {
	Handle(ctx context.Context, err error, opts ...Option) *DetError
}

// Handler applies the error policy: auth errors log the user out, everything
// else may be notified, logged and tracked.
type Handler struct {
	notifier   Notifier
	navigator  Navigator
	sink       analytics.Sink
	logger     zerolog.Logger
	loginPath  string
	logoutPath string
	dev        bool

	mu sync.Mutex
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithNotifier sets where notifications go.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) { h.notifier = n }
}

// WithNavigator sets the navigator used for auth errors.
func WithNavigator(n Navigator) HandlerOption {
	return func(h *Handler) { h.navigator = n }
}

// WithSink sets the analytics sink.
func WithSink(s analytics.Sink) HandlerOption {
	return func(h *Handler) { h.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logging.ComponentLogger(l, "errors") }
}

// WithPaths overrides the login and logout paths.
func WithPaths(login, logout string) HandlerOption {
	return func(h *Handler) {
		if login != "" {
			h.loginPath = login
		}
		if logout != "" {
			h.logoutPath = logout
		}
	}
}

// WithDevMode enables development warnings, such as double handling.
func WithDevMode(dev bool) HandlerOption {
	return func(h *Handler) { h.dev = dev }
}

// NewHandler creates a Handler. Without options it logs nowhere and
// notifies nobody.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		sink:       analytics.Nop{},
		logger:     zerolog.Nop(),
		loginPath:  DefaultLoginPath,
		logoutPath: DefaultLogoutPath,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle processes err once. Cancellations return nil. Every other error is
// returned as a *DetError so the caller can propagate it.
func (h *Handler) Handle(ctx context.Context, err error, opts ...Option) *DetError {
	if err == nil || IsCancel(err) {
		return nil
	}

	e := New(err, opts...)
	logger := h.logger
	if id := logging.TraceIDFromContext(ctx); id != "" {
		logger = logger.With().Str("trace_id", id).Logger()
	}

	h.mu.Lock()
	already := e.handled
	e.handled = true
	h.mu.Unlock()

	if already {
		if h.dev {
			logger.Warn().Str("error", e.Error()).Msg("error handled more than once")
		}
		return e
	}

	if e.Type == TypeAuth {
		h.logout()
		return e
	}

	if !skipNotification(e) && h.notifier != nil {
		h.notifier.Notify(ctx, Notification{
			Level:   e.Level,
			Type:    e.Type,
			Subject: e.Subject(),
			Message: e.PublicMessage,
		})
	}

	if e.Silent {
		return e
	}

	ev := logger.Error()
	if e.Level == LevelWarning {
		ev = logger.Warn()
	}
	ev = ev.Str("type", string(e.Type)).Str("level", string(e.Level))
	if e.ID != "" {
		ev = ev.Str("id", e.ID)
	}
	if e.Payload != nil {
		ev = ev.Interface("payload", e.Payload)
	}
	ev.Err(e.cause).Msg(e.Subject())

	h.sink.Track(ctx, "EH:"+string(e.Level), map[string]any{
		"type":    string(e.Type),
		"id":      e.ID,
		"message": e.Error(),
	})
	return e
}

// Recover handles a recovered panic value. Use it as
// `defer func() { h.Recover(ctx, recover()) }()`.
func (h *Handler) Recover(ctx context.Context, r any) *DetError {
	if r == nil {
		return nil
	}
	return h.Handle(ctx, FromPanic(r))
}

func (h *Handler) logout() {
	if h.navigator == nil {
		return
	}
	path := h.navigator.CurrentPath()
	if strings.HasPrefix(path, h.loginPath) || strings.HasPrefix(path, h.logoutPath) {
		return
	}
	h.navigator.Navigate(h.logoutPath)
}

// skipNotification is true for silent errors and for warnings that have
// nothing to tell the user.
func skipNotification(e *DetError) bool {
	return e.Silent || (e.Level == LevelWarning && e.PublicMessage == "")
}
