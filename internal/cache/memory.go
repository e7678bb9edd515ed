package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

// MemoryStore keeps entries in a map. Nothing is evicted.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]models.CacheEntry
	counter Counter
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]models.CacheEntry),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		s.counter.Miss()
		return nil, false, nil
	}
	s.counter.Hit()
	ent.AccessCount++
	ent.LastAccessedAt = s.now()
	s.items[key] = ent
	return cloneEntry(ent), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.items[key]; ok {
		if !bytes.Equal(ent.Payload, payload) {
			return cloneEntry(ent), models.ErrKeyConflict
		}
		return cloneEntry(ent), nil
	}
	ent := s.newEntry(key, tier, payload)
	s.items[key] = ent
	return cloneEntry(ent), nil
}

func (s *MemoryStore) Replace(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.newEntry(key, tier, payload)
	s.items[key] = ent
	return cloneEntry(ent), nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return nil
	}
	ent.AccessCount++
	ent.LastAccessedAt = s.now()
	s.items[key] = ent
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	n := int64(len(s.items))
	s.mu.Unlock()
	hits, misses := s.counter.Snapshot()
	return NewStats(hits, misses, n), nil
}

func (s *MemoryStore) newEntry(key string, tier models.CostTier, payload []byte) models.CacheEntry {
	now := s.now()
	return models.CacheEntry{
		Key:            key,
		CostTier:       tier,
		Payload:        append([]byte(nil), payload...),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

func cloneEntry(ent models.CacheEntry) *models.CacheEntry {
	ent.Payload = append([]byte(nil), ent.Payload...)
	return &ent
}
