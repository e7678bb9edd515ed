// Package cache holds the content-addressable store for generation
// responses and its backends.
package cache

import (
	"context"
	"sync/atomic"

	"github.com/example/mindmentor/pkg/models"
)

// Store persists generation responses by digest key.
//
// Get never fails on a miss: it returns ok=false and a nil error. A hit
// increments AccessCount and refreshes LastAccessedAt before returning.
// Put is idempotent for an identical payload; a different payload under an
// existing key is rejected with models.ErrKeyConflict and only Replace may
// overwrite it.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, bool, error)
	Put(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error)
	Replace(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error)
	Invalidate(ctx context.Context, key string) error
	Touch(ctx context.Context, key string) error
	Stats(ctx context.Context) (Stats, error)
}

// Stats is hit-rate telemetry for a store
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int64   `json:"entries"`
}

// NewStats fills in the hit rate
func NewStats(hits, misses, entries int64) Stats {
	s := Stats{Hits: hits, Misses: misses, Entries: entries}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Counter tracks hits and misses for stores that keep them in-process
type Counter struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *Counter) Hit()  { c.hits.Add(1) }
func (c *Counter) Miss() { c.misses.Add(1) }

// Snapshot returns the current counts
func (c *Counter) Snapshot() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
