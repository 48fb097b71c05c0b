package models

import "time"

// CacheEntry stores a previously generated response under a fingerprint key.
type CacheEntry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Expired reports whether the entry is older than ttl at now.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) > ttl
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
