package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/pkg/models"
)

// CacheRepository is a cache.Store on the llm_cache table
type CacheRepository struct {
	db      *sqlx.DB
	counter cache.Counter
	now     func() time.Time
}

// NewCacheRepository creates a new repository instance
func NewCacheRepository(db *sqlx.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

var _ cache.Store = (*CacheRepository)(nil)

type cacheRow struct {
	Key            string    `db:"cache_key"`
	CostTier       string    `db:"cost_tier"`
	Payload        string    `db:"payload"`
	CreatedAt      time.Time `db:"created_at"`
	LastAccessedAt time.Time `db:"last_accessed_at"`
	AccessCount    int64     `db:"access_count"`
}

func (r cacheRow) entry() *models.CacheEntry {
	return &models.CacheEntry{
		Key:            r.Key,
		CostTier:       models.CostTier(r.CostTier),
		Payload:        []byte(r.Payload),
		CreatedAt:      r.CreatedAt.UTC(),
		LastAccessedAt: r.LastAccessedAt.UTC(),
		AccessCount:    r.AccessCount,
	}
}

const cacheColumns = "cache_key, cost_tier, payload, created_at, last_accessed_at, access_count"

// Get returns the entry and records the access in the same transaction
func (r *CacheRepository) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	res, err := tx.ExecContext(ctx, tx.Rebind(
		"UPDATE llm_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE cache_key = ?"),
		now, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to touch cache entry: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.counter.Miss()
		return nil, false, nil
	}

	var row cacheRow
	if err := tx.GetContext(ctx, &row, tx.Rebind("SELECT "+cacheColumns+" FROM llm_cache WHERE cache_key = ?"), key); err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit: %v", err)
	}
	r.counter.Hit()
	return row.entry(), true, nil
}

// Put inserts the entry unless the key exists. A different payload under an
// existing key is left alone and reported as ErrKeyConflict.
func (r *CacheRepository) Put(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO llm_cache (`+cacheColumns+`)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (cache_key) DO NOTHING`),
		key, string(tier), string(payload), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cache entry: %v", err)
	}

	var row cacheRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind("SELECT "+cacheColumns+" FROM llm_cache WHERE cache_key = ?"), key); err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %v", err)
	}
	ent := row.entry()
	if row.Payload != string(payload) {
		return ent, models.ErrKeyConflict
	}
	return ent, nil
}

// Replace overwrites the entry and restarts its access history
func (r *CacheRepository) Replace(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO llm_cache (`+cacheColumns+`)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (cache_key) DO UPDATE SET
			cost_tier = excluded.cost_tier,
			payload = excluded.payload,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = 0`),
		key, string(tier), string(payload), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to replace cache entry: %v", err)
	}
	return &models.CacheEntry{
		Key:            key,
		CostTier:       tier,
		Payload:        append([]byte(nil), payload...),
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

func (r *CacheRepository) Invalidate(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM llm_cache WHERE cache_key = ?"), key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %v", err)
	}
	return nil
}

func (r *CacheRepository) Touch(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		"UPDATE llm_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE cache_key = ?"),
		r.now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %v", err)
	}
	return nil
}

// Stats counts entries in the table; hits and misses are per process
func (r *CacheRepository) Stats(ctx context.Context) (cache.Stats, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM llm_cache"); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return cache.Stats{}, fmt.Errorf("failed to count cache entries: %v", err)
	}
	hits, misses := r.counter.Snapshot()
	return cache.NewStats(hits, misses, n), nil
}
