// Package probe measures master API latency by replaying the console's
// page-load requests and checks the result against thresholds.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/detconsole/internal/logging"
)

// Defaults match the latency budget the console is expected to meet.
const (
	DefaultIterations     = 10
	DefaultConcurrency    = 4
	DefaultP95Threshold   = time.Second
	DefaultMaxFailureRate = 0.01
)

// Requester sends one request and reports its status.
type Requester interface {
	Do(ctx context.Context, method, path string, body any) (int, error)
}

// Config controls a probe run.
type Config struct {
	Iterations     int
	Concurrency    int
	P95Threshold   time.Duration
	MaxFailureRate float64

	// Registry, when set, receives the latency histogram and failure counter.
	Registry prometheus.Registerer
	Logger   zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.P95Threshold <= 0 {
		c.P95Threshold = DefaultP95Threshold
	}
	if c.MaxFailureRate <= 0 {
		c.MaxFailureRate = DefaultMaxFailureRate
	}
	return c
}

type metrics struct {
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "detconsole",
			Subsystem: "probe",
			Name:      "request_duration_seconds",
			Help:      "Latency of probed master requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"endpoint"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detconsole",
			Subsystem: "probe",
			Name:      "request_failures_total",
			Help:      "Probed master requests that failed.",
		}, []string{"endpoint"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.latency, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering probe metrics: %w", err)
		}
	}
	return m, nil
}

type sample struct {
	elapsed time.Duration
	failed  bool
}

// Run sends every endpoint cfg.Iterations times with at most cfg.Concurrency
// requests in flight. Individual request failures are recorded, not
// returned; Run fails only when ctx ends or metrics cannot be registered.
func Run(ctx context.Context, r Requester, endpoints []Endpoint, cfg Config) (*Report, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no endpoints to probe")
	}
	cfg = cfg.withDefaults()
	logger := logging.ComponentLogger(cfg.Logger, "probe")

	m, err := newMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	samples := make([][]sample, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	start := time.Now()
loop:
	for iter := 0; iter < cfg.Iterations; iter++ {
		for i, ep := range endpoints {
			if gctx.Err() != nil {
				break loop
			}
			g.Go(func() error {
				begin := time.Now()
				status, err := r.Do(gctx, ep.Method, ep.Path, ep.Body)
				elapsed := time.Since(begin)
				if gctx.Err() != nil {
					return gctx.Err()
				}

				failed := err != nil || status != http.StatusOK
				m.latency.WithLabelValues(ep.Name).Observe(elapsed.Seconds())
				if failed {
					m.failures.WithLabelValues(ep.Name).Inc()
					logger.Debug().Err(err).Int("status", status).Str("endpoint", ep.Name).Msg("probe request failed")
				}

				mu.Lock()
				samples[i] = append(samples[i], sample{elapsed: elapsed, failed: failed})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := buildReport(endpoints, samples, cfg)
	report.Elapsed = time.Since(start)
	logger.Info().
		Int("requests", report.Requests).
		Int("failures", report.Failures).
		Dur("p95", report.P95).
		Bool("passed", report.Passed()).
		Msg("probe finished")
	return report, nil
}

func buildReport(endpoints []Endpoint, samples [][]sample, cfg Config) *Report {
	rep := &Report{
		P95Threshold:   cfg.P95Threshold,
		MaxFailureRate: cfg.MaxFailureRate,
	}
	var all []time.Duration
	for i, ep := range endpoints {
		res := EndpointResult{Name: ep.Name, Method: ep.Method, Path: ep.Path}
		durs := make([]time.Duration, 0, len(samples[i]))
		for _, s := range samples[i] {
			res.Count++
			if s.failed {
				res.Failures++
			}
			durs = append(durs, s.elapsed)
		}
		sortDurations(durs)
		res.P50 = percentile(durs, 50)
		res.P95 = percentile(durs, 95)
		if len(durs) > 0 {
			res.Max = durs[len(durs)-1]
		}

		rep.Requests += res.Count
		rep.Failures += res.Failures
		rep.Endpoints = append(rep.Endpoints, res)
		all = append(all, durs...)
	}
	sortDurations(all)
	rep.P95 = percentile(all, 95)
	return rep
}

func sortDurations(d []time.Duration) {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
}

// percentile returns the nearest-rank p-th percentile of sorted durations.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
