package models

import (
	"time"
)

// CacheEntry is the JSON value persisted under the prediction cache key.
// Timestamp is the epoch-millisecond instant of the fetch that produced it.
type CacheEntry struct {
	Predictions []Prediction      `json:"predictions"`
	Sources     []GroundingSource `json:"sources"`
	Timestamp   int64             `json:"timestamp"`
}

// Age returns how old the entry is at the given instant.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.Timestamp))
}

// IsFresh reports whether the entry is still within the freshness window.
func (e *CacheEntry) IsFresh(now time.Time, window time.Duration) bool {
	return e.Age(now) <= window
}

// FetchResult is what one run of the prediction workflow returns.
// LastUpdated carries the cache entry time on hits and the fetch time on
// live calls. FetchID correlates a live fetch across logs and events; it is
// empty on cache hits.
type FetchResult struct {
	Predictions []Prediction      `json:"predictions"`
	Sources     []GroundingSource `json:"sources"`
	FromCache   bool              `json:"fromCache"`
	LastUpdated time.Time         `json:"lastUpdated"`
	FetchID     string            `json:"fetchId,omitempty"`
}

// AppState is the serving layer's view of the latest fetch outcome. It is
// mutated only by fetch completion and failure paths.
type AppState struct {
	Predictions []Prediction      `json:"predictions"`
	Sources     []GroundingSource `json:"sources"`
	Loading     bool              `json:"loading"`
	Error       string            `json:"error,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"`
	IsFromCache bool              `json:"isFromCache"`
}
