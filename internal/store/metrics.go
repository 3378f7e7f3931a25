package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	fetches *prometheus.CounterVec
}

// WithMetrics counts fetch outcomes in detconsole_store_fetch_total on reg.
// Stores sharing a registry share the counter, labelled by store name.
func WithMetrics[K comparable, V any](reg prometheus.Registerer) Option[K, V] {
	return func(s *Store[K, V]) {
		m, err := newMetrics(reg)
		if err != nil {
			s.logger.Warn().Err(err).Msg("store metrics disabled")
			return
		}
		s.metrics = m
	}
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detconsole",
		Subsystem: "store",
		Name:      "fetch_total",
		Help:      "Store fetches by outcome.",
	}, []string{"store", "result"})

	if reg == nil {
		return &metrics{fetches: fetches}, nil
	}
	if err := reg.Register(fetches); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		fetches = existing
	}
	return &metrics{fetches: fetches}, nil
}
