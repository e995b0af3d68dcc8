package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store layer (memory, redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "immo_cache_hits_total",
			Help: "Total number of listings cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "immo_cache_misses_total",
			Help: "Total number of listings cache misses",
		},
	)

	// CacheEvictions tracks LRU evictions from the memory store.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "immo_cache_evictions_total",
			Help: "Total number of entries evicted from the memory cache",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "immo_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// ConditionalRequestsSent tracks requests carrying If-None-Match.
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "immo_conditional_requests_total",
			Help: "Total number of conditional requests sent with If-None-Match",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "immo_not_modified_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)
)
