package cache

import (
	"context"
	"sync"

	"github.com/emezpr/Sureodds/internal/models"
)

// MemoryStore keeps cache entries in process memory. Entries do not
// survive restarts; useful for tests and throwaway setups.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	s.mu.RLock()
	payload, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeEntry(payload)
}

func (s *MemoryStore) Put(ctx context.Context, key string, entry *models.CacheEntry) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
