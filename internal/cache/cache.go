// Package cache provides pluggable persistence for fetched predictions.
// All backends store entries as JSON under a caller-chosen key and share
// one Store interface so the fetcher stays agnostic about where they live.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emezpr/Sureodds/internal/models"
)

// ErrCorruptEntry marks a stored payload that no longer decodes into a
// valid CacheEntry. Callers typically delete the entry and fetch live.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Store is the persistence contract used by the fetcher. Get returns
// (nil, nil) when the key is absent, and an error wrapping ErrCorruptEntry
// when the stored payload fails to decode or validate.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, key string, entry *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

func encodeEntry(entry *models.CacheEntry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(payload []byte) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if entry.Predictions == nil {
		return nil, fmt.Errorf("%w: missing predictions", ErrCorruptEntry)
	}
	if entry.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrCorruptEntry)
	}
	return &entry, nil
}
