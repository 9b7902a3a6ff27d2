package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no live value exists for a key.
	ErrNotFound = errors.New("no cached value for key")
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a concurrency-safe in-memory key-value store with per-key TTL.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]entry
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns a copy of the value stored under key, or ErrNotFound if it is
// missing or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(now) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if cur, ok := s.data[key]; ok && cur.expired(now) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set replaces the value for key. ttl <= 0 stores without expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := entry{value: v}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.data[key] = e

	// Enforce retention by age.
	for k, old := range s.data {
		if old.expired(now) {
			delete(s.data, k)
		}
	}
	return nil
}
