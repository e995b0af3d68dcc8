package cache

import "time"

// Entry is one cached, parsed response from the listings API.
type Entry struct {
	// Payload is the parsed JSON body.
	Payload map[string]any `json:"payload"`

	// ETag is the validation token for conditional requests (If-None-Match).
	// Empty if the server sent none.
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale. Stale entries are kept for
	// revalidation, not discarded.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry is stale.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until the entry becomes stale.
// Returns 0 if already stale.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
