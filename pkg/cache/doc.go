// Package cache provides fingerprint-keyed caching of parsed listings API
// responses, with ETag support for conditional revalidation.
//
// A cache key is a SHA-256 fingerprint over the canonical serialization of
// (endpoint URL, expanded query parameters), so two queries that expand to the
// same parameters always share an entry regardless of construction order.
//
// Two Store implementations are provided:
//
//   - MemoryStore: in-process, mutex-guarded, bounded by an LRU size cap.
//     The default for single-process harvest runs.
//   - RedisStore: Redis-backed, for sharing the cache across processes or
//     surviving restarts between harvest runs.
//
// Stores return stale entries rather than dropping them: an expired entry
// still carries the ETag needed for an If-None-Match revalidation, which is
// much cheaper than re-transferring the full result page. Callers decide
// staleness via Entry.IsExpired.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(1024)
//
//	key := cache.Fingerprint("https://api.thinkimmo.com/immo", q.Params())
//
//	entry, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API, then:
//		store.Set(ctx, key, &cache.Entry{Payload: payload, ETag: etag, Expires: exp})
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - immo_cache_hits_total{layer} - cache hits by store layer
//   - immo_cache_misses_total - cache misses
//   - immo_cache_evictions_total - LRU evictions from the memory store
//   - immo_cache_errors_total{operation} - store operation errors
//   - immo_conditional_requests_total - requests sent with If-None-Match
//   - immo_not_modified_total - 304 Not Modified responses
package cache
