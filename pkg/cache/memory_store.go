package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// MemoryStore is a process-local Store. Expired entries are evicted lazily:
// Get drops an expired entry it finds and Set sweeps the whole map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Sizer = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store whose entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*models.CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if entry.Expired(s.now(), s.ttl) {
		delete(s.entries, key)
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[entry.Key] = &cp
	s.sweepLocked()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*models.CacheEntry)
}

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for k, e := range s.entries {
		if e.Expired(now, s.ttl) {
			delete(s.entries, k)
		}
	}
}
