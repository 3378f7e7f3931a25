// Package analytics records best-effort telemetry events.
//
// Sinks must never fail loudly: Track has no error return, and callers do not
// route sink problems back into the error handler.
package analytics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rshade/detconsole/internal/logging"
)

// Sink receives named events with arbitrary properties.
type Sink interface {
	Track(ctx context.Context, event string, props map[string]any)
}

// Nop discards everything.
type Nop struct{}

// Track implements Sink.
func (Nop) Track(context.Context, string, map[string]any) {}

// PromSink counts events per name and logs them at debug level.
type PromSink struct {
	events *prometheus.CounterVec
	logger zerolog.Logger
}

// NewPromSink creates a PromSink and registers its counter on reg when reg is
// not nil. An already registered identical counter is reused.
func NewPromSink(reg prometheus.Registerer, logger zerolog.Logger) *PromSink {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detconsole",
		Subsystem: "analytics",
		Name:      "events_total",
		Help:      "Analytics events tracked by name.",
	}, []string{"event"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					events = existing
				}
			}
		}
	}

	return &PromSink{events: events, logger: logging.ComponentLogger(logger, "analytics")}
}

// Track implements Sink.
func (s *PromSink) Track(_ context.Context, event string, props map[string]any) {
	s.events.WithLabelValues(event).Inc()
	s.logger.Debug().
		Str("event", event).
		Str("event_id", logging.NewID()).
		Fields(props).
		Msg("analytics event")
}

// Counter exposes the underlying counter for tests and /metrics wiring.
func (s *PromSink) Counter() *prometheus.CounterVec {
	return s.events
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Track implements Sink.
func (m Multi) Track(ctx context.Context, event string, props map[string]any) {
	for _, s := range m {
		s.Track(ctx, event, props)
	}
}

// Event is one recorded call, kept by Recorder.
type Event struct {
	Name  string
	Props map[string]any
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Track implements Sink.
func (r *Recorder) Track(_ context.Context, event string, props map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Props: props})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
