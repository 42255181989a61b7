package storage

import (
	"context"
	"sync"
	"time"

	"search-agent/internal/models"
)

type memoryEntry struct {
	value     stored
	expiresAt time.Time
}

// MemoryStore is a process-local ResultStore with TTL eviction.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(ctx context.Context, outcome *models.Outcome) (string, error) {
	id, err := prepare(outcome)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	entry := memoryEntry{value: snapshot(outcome)}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}
	s.entries[id] = entry
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Outcome, error) {
	if err := validID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok || s.expired(entry, s.now()) {
		return nil, ErrNotFound
	}
	return entry.value.restore(), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len counts live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, entry := range s.entries {
		if !s.expired(entry, now) {
			count++
		}
	}
	return count
}

func (s *MemoryStore) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
		}
	}
}
