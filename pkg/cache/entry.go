package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached upstream result.
type Entry struct {
	// Key is the cache key the entry is stored under
	Key string `json:"key"`

	// Value is the raw JSON result
	Value json.RawMessage `json:"value"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`

	// TTL is how long the entry stays valid after StoredAt
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the entry is stale at now.
// An entry exactly TTL old is still served.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Remaining returns the time left before the entry expires at now.
// Returns 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	left := e.TTL - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}
