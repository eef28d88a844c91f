package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results recorded on swapi_cache_lookups_total.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_cache_lookups_total",
		Help: "Document cache lookups by result",
	}, []string{"result"})

	revalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_cache_revalidations_total",
		Help: "Cached documents confirmed by a 304 Not Modified",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_cache_failures_total",
		Help: "Failed cache operations by operation",
	}, []string{"op"})
)
