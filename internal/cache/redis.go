package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/mindmentor/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "llmcache:entry:"
	redisKeysSet     = "llmcache:keys"
	redisHits        = "llmcache:stats:hits"
	redisMisses      = "llmcache:stats:misses"
	redisTxRetries   = 3
)

// RedisStore keeps each entry in a hash. Hit and miss counters live in
// Redis as well, so every process sharing the instance reports the same
// rate.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Close releases the connection pool
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	var ent *models.CacheEntry
	hk := redisEntryPrefix + key
	err := r.watch(ctx, hk, func(tx *redis.Tx) error {
		ent = nil
		vals, err := tx.HGetAll(ctx, hk).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return nil
		}
		parsed, err := parseRedisEntry(key, vals)
		if err != nil {
			return err
		}
		now := r.now()
		parsed.AccessCount++
		parsed.LastAccessedAt = now
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, hk, "access_count", 1)
			pipe.HSet(ctx, hk, "last_accessed_at", now.UnixNano())
			return nil
		})
		if err == nil {
			ent = parsed
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if ent == nil {
		r.client.Incr(ctx, redisMisses)
		return nil, false, nil
	}
	r.client.Incr(ctx, redisHits)
	return ent, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	var ent *models.CacheEntry
	var conflict bool
	hk := redisEntryPrefix + key
	err := r.watch(ctx, hk, func(tx *redis.Tx) error {
		conflict = false
		vals, err := tx.HGetAll(ctx, hk).Result()
		if err != nil {
			return err
		}
		if len(vals) > 0 {
			existing, err := parseRedisEntry(key, vals)
			if err != nil {
				return err
			}
			ent = existing
			conflict = string(existing.Payload) != string(payload)
			return nil
		}
		fresh := r.newEntry(key, tier, payload)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hk, redisFields(fresh))
			pipe.SAdd(ctx, redisKeysSet, key)
			return nil
		})
		if err == nil {
			ent = fresh
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store cache entry: %w", err)
	}
	if conflict {
		return ent, models.ErrKeyConflict
	}
	return ent, nil
}

func (r *RedisStore) Replace(ctx context.Context, key string, tier models.CostTier, payload []byte) (*models.CacheEntry, error) {
	ent := r.newEntry(key, tier, payload)
	hk := redisEntryPrefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hk)
		pipe.HSet(ctx, hk, redisFields(ent))
		pipe.SAdd(ctx, redisKeysSet, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace cache entry: %w", err)
	}
	return ent, nil
}

func (r *RedisStore) Invalidate(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisEntryPrefix+key)
		pipe.SRem(ctx, redisKeysSet, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Touch(ctx context.Context, key string) error {
	hk := redisEntryPrefix + key
	return r.watch(ctx, hk, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, hk).Result()
		if err != nil || n == 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, hk, "access_count", 1)
			pipe.HSet(ctx, hk, "last_accessed_at", r.now().UnixNano())
			return nil
		})
		return err
	})
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	hits, err := r.counter(ctx, redisHits)
	if err != nil {
		return Stats{}, err
	}
	misses, err := r.counter(ctx, redisMisses)
	if err != nil {
		return Stats{}, err
	}
	n, err := r.client.SCard(ctx, redisKeysSet).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return NewStats(hits, misses, n), nil
}

func (r *RedisStore) counter(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return n, nil
}

// watch runs fn in an optimistic transaction, retrying when another client
// modified the key in between
func (r *RedisStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < redisTxRetries; i++ {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *RedisStore) newEntry(key string, tier models.CostTier, payload []byte) *models.CacheEntry {
	now := r.now()
	return &models.CacheEntry{
		Key:            key,
		CostTier:       tier,
		Payload:        append([]byte(nil), payload...),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

func redisFields(ent *models.CacheEntry) map[string]any {
	return map[string]any{
		"tier":             string(ent.CostTier),
		"payload":          string(ent.Payload),
		"created_at":       ent.CreatedAt.UnixNano(),
		"last_accessed_at": ent.LastAccessedAt.UnixNano(),
		"access_count":     ent.AccessCount,
	}
}

func parseRedisEntry(key string, vals map[string]string) (*models.CacheEntry, error) {
	created, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for %s: %v", key, err)
	}
	accessed, err := strconv.ParseInt(vals["last_accessed_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt last_accessed_at for %s: %v", key, err)
	}
	count, err := strconv.ParseInt(vals["access_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt access_count for %s: %v", key, err)
	}
	return &models.CacheEntry{
		Key:            key,
		CostTier:       models.CostTier(vals["tier"]),
		Payload:        []byte(vals["payload"]),
		CreatedAt:      time.Unix(0, created),
		LastAccessedAt: time.Unix(0, accessed),
		AccessCount:    count,
	}, nil
}
