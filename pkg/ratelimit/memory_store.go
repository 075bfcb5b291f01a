package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory KVStore for tests and single-instance
// deployments. Expired counters are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is overridable in tests to simulate window expiry.
	Now func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return 0, nil
	}
	return e.count, nil
}

func (s *MemoryStore) IncrementAndExpire(ctx context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	for _, in := range entries {
		e, ok := s.entries[in.Key]
		if !ok || now.After(e.expiresAt) {
			e = memoryEntry{}
		}
		e.count++
		e.expiresAt = now.Add(in.TTL)
		s.entries[in.Key] = e
	}
	return nil
}
