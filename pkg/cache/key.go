package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint computes the cache key for a request: a SHA-256 hex digest over
// the canonical JSON serialization of the endpoint URL and its fully expanded
// parameters. encoding/json sorts map keys and emits no incidental whitespace,
// so semantically equal requests always fingerprint identically.
func Fingerprint(url string, params map[string]string) string {
	canonical, _ := json.Marshal(map[string]any{
		"params": params,
		"url":    url,
	})

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
