package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheEntries tracks current in-memory entries by cache
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_cache_entries",
			Help: "Current number of in-memory cache entries",
		},
		[]string{"cache"}, // "compute", "ai"
	)

	// CacheEvictions tracks entries removed by the size bound
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_evictions_total",
			Help: "Total number of cache entries evicted by the size bound",
		},
		[]string{"cache"},
	)

	// CacheExpirations tracks entries removed because they were stale on read
	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_expirations_total",
			Help: "Total number of expired cache entries removed on read",
		},
		[]string{"cache"},
	)

	// RedisHits tracks lookups served by the shared Redis layer
	RedisHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_redis_hits_total",
			Help: "Total number of cache lookups served by Redis",
		},
		[]string{"cache"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)
)
