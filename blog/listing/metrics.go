package listing

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	tierMemory = "memory"
	tierFile   = "file"

	outcomeSuccess    = "success"
	outcomeError      = "error"
	outcomeInProgress = "in_progress"
)

type metrics struct {
	hits          *prometheus.CounterVec
	misses        prometheus.Counter
	regenerations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "publog",
			Subsystem: "listing_cache",
			Name:      "hits_total",
			Help:      "Listing cache reads served, by tier.",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "publog",
			Subsystem: "listing_cache",
			Name:      "misses_total",
			Help:      "Listing cache reads that fell through to storage.",
		}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "publog",
			Subsystem: "listing",
			Name:      "regenerations_total",
			Help:      "Listing cache regenerations, by outcome.",
		}, []string{"outcome"}),
	}
	if reg == nil {
		return m
	}

	m.hits = register(reg, m.hits)
	m.misses = register(reg, m.misses)
	m.regenerations = register(reg, m.regenerations)
	return m
}

// register adds c to reg, reusing an identical collector registered by an
// earlier cache instance.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
