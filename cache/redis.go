package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisKeyCache.
const DefaultRedisPrefix = "jatp:keys:"

// RedisKeyCache is a KeyStore shared between processes through Redis.
//
// Each project is a hash of key id to a JSON record. A sorted set scored by
// an insertion counter tracks project order for capacity eviction. Expiry
// is checked on read, as in MemoryKeyCache, so behavior does not depend on
// Redis key TTLs.
type RedisKeyCache struct {
	rdb    redis.UniversalClient
	prefix string
	policy Policy
	opts   options
}

// NewRedisKeyCache creates a Redis-backed key cache. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisKeyCache(rdb redis.UniversalClient, prefix string, policy Policy, opts ...Option) (*RedisKeyCache, error) {
	if rdb == nil {
		return nil, ErrNilStore
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisKeyCache{
		rdb:    rdb,
		prefix: prefix,
		policy: policy,
		opts:   buildOptions(opts),
	}, nil
}

type redisRecord struct {
	KeyID          string `json:"key_id"`
	PublicKeyPEM   string `json:"public_key_pem"`
	IsPrimary      bool   `json:"is_primary"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
	CacheExpiresAt int64  `json:"cache_expires_at,omitempty"`
}

func toRecord(k CachedKey) redisRecord {
	return redisRecord{
		KeyID:          k.KeyID,
		PublicKeyPEM:   k.PublicKeyPEM,
		IsPrimary:      k.IsPrimary,
		ExpiresAt:      unixNano(k.ExpiresAt),
		CacheExpiresAt: unixNano(k.CacheExpiresAt),
	}
}

func (r redisRecord) cachedKey() CachedKey {
	return CachedKey{
		PublicKey: PublicKey{
			KeyID:        r.KeyID,
			PublicKeyPEM: r.PublicKeyPEM,
			IsPrimary:    r.IsPrimary,
			ExpiresAt:    fromUnixNano(r.ExpiresAt),
		},
		CacheExpiresAt: fromUnixNano(r.CacheExpiresAt),
	}
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (c *RedisKeyCache) projectKey(projectID string) string { return c.prefix + "project:" + projectID }
func (c *RedisKeyCache) orderKey() string                   { return c.prefix + "projects" }
func (c *RedisKeyCache) seqKey() string                     { return c.prefix + "seq" }

// Get returns a valid key. Expired entries are removed lazily.
func (c *RedisKeyCache) Get(ctx context.Context, projectID, keyID string) (CachedKey, bool) {
	if keyID == "" {
		for _, k := range c.GetAllActive(ctx, projectID) {
			if k.IsPrimary {
				return k, true
			}
		}
		return CachedKey{}, false
	}

	raw, err := c.rdb.HGet(ctx, c.projectKey(projectID), keyID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.opts.onError(fmt.Errorf("cache: redis get %s/%s: %w", projectID, keyID, err))
		}
		return CachedKey{}, false
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.opts.onError(fmt.Errorf("cache: decode %s/%s: %w", projectID, keyID, err))
		c.removeKeys(ctx, projectID, keyID)
		return CachedKey{}, false
	}

	k := rec.cachedKey()
	if !k.Valid(c.opts.now()) {
		c.removeKeys(ctx, projectID, keyID)
		return CachedKey{}, false
	}
	return k, true
}

// Set stores one key under the project.
func (c *RedisKeyCache) Set(ctx context.Context, projectID string, key PublicKey, cacheUntil time.Time) error {
	if key.KeyID == "" {
		return ErrMissingKeyID
	}
	return c.store(ctx, projectID, []PublicKey{key}, cacheUntil)
}

// SetAllActive stores a rotation set.
func (c *RedisKeyCache) SetAllActive(ctx context.Context, projectID string, keys []PublicKey, cacheUntil time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if k.KeyID == "" {
			return ErrMissingKeyID
		}
	}
	return c.store(ctx, projectID, keys, cacheUntil)
}

func (c *RedisKeyCache) store(ctx context.Context, projectID string, keys []PublicKey, cacheUntil time.Time) error {
	if err := ValidateID(projectID); err != nil {
		return err
	}
	if err := c.admitProject(ctx, projectID); err != nil {
		return err
	}

	now := c.opts.now()
	values := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		rec := toRecord(CachedKey{
			PublicKey:      k,
			CacheExpiresAt: c.policy.CacheExpiry(now, cacheUntil, k.ExpiresAt),
		})
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("cache: encode %s/%s: %w", projectID, k.KeyID, err)
		}
		values = append(values, k.KeyID, raw)
	}

	if err := c.rdb.HSet(ctx, c.projectKey(projectID), values...).Err(); err != nil {
		return fmt.Errorf("cache: redis set %s: %w", projectID, err)
	}
	return nil
}

// admitProject registers a new project, evicting the oldest one when the
// cache is at capacity. Known projects are left in place.
func (c *RedisKeyCache) admitProject(ctx context.Context, projectID string) error {
	_, err := c.rdb.ZScore(ctx, c.orderKey(), projectID).Result()
	if err == nil {
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: redis lookup %s: %w", projectID, err)
	}

	if c.policy.MaxSize > 0 {
		n, err := c.rdb.ZCard(ctx, c.orderKey()).Result()
		if err != nil {
			return fmt.Errorf("cache: redis count projects: %w", err)
		}
		if c.policy.atCapacity(int(n)) {
			oldest, err := c.rdb.ZPopMin(ctx, c.orderKey(), 1).Result()
			if err != nil {
				return fmt.Errorf("cache: redis evict: %w", err)
			}
			for _, z := range oldest {
				if id, ok := z.Member.(string); ok {
					if err := c.rdb.Del(ctx, c.projectKey(id)).Err(); err != nil {
						return fmt.Errorf("cache: redis evict %s: %w", id, err)
					}
				}
			}
		}
	}

	seq, err := c.rdb.Incr(ctx, c.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("cache: redis sequence: %w", err)
	}
	if err := c.rdb.ZAddNX(ctx, c.orderKey(), redis.Z{Score: float64(seq), Member: projectID}).Err(); err != nil {
		return fmt.Errorf("cache: redis register %s: %w", projectID, err)
	}
	return nil
}

// GetAllActive returns all valid keys for the project.
func (c *RedisKeyCache) GetAllActive(ctx context.Context, projectID string) []CachedKey {
	all, err := c.rdb.HGetAll(ctx, c.projectKey(projectID)).Result()
	if err != nil {
		c.opts.onError(fmt.Errorf("cache: redis get all %s: %w", projectID, err))
		return nil
	}

	now := c.opts.now()
	var (
		active []CachedKey
		stale  []string
	)
	for id, raw := range all {
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			stale = append(stale, id)
			continue
		}
		k := rec.cachedKey()
		if !k.Valid(now) {
			stale = append(stale, id)
			continue
		}
		active = append(active, k)
	}
	if len(stale) > 0 {
		c.removeKeys(ctx, projectID, stale...)
	}

	sort.Slice(active, func(i, j int) bool { return active[i].KeyID < active[j].KeyID })
	return active
}

// Invalidate drops the project.
func (c *RedisKeyCache) Invalidate(ctx context.Context, projectID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.projectKey(projectID))
		pipe.ZRem(ctx, c.orderKey(), projectID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: redis invalidate %s: %w", projectID, err)
	}
	return nil
}

// Clear drops every project written under this prefix.
func (c *RedisKeyCache) Clear(ctx context.Context) error {
	projects, err := c.rdb.ZRange(ctx, c.orderKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cache: redis list projects: %w", err)
	}

	keys := make([]string, 0, len(projects)+1)
	for _, p := range projects {
		keys = append(keys, c.projectKey(p))
	}
	keys = append(keys, c.orderKey())

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: redis clear: %w", err)
	}
	return nil
}

// CleanupExpired removes expired keys and empty projects.
func (c *RedisKeyCache) CleanupExpired(ctx context.Context) (int, error) {
	projects, err := c.rdb.ZRange(ctx, c.orderKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: redis list projects: %w", err)
	}

	now := c.opts.now()
	removed := 0
	for _, p := range projects {
		all, err := c.rdb.HGetAll(ctx, c.projectKey(p)).Result()
		if err != nil {
			return removed, fmt.Errorf("cache: redis get all %s: %w", p, err)
		}

		var stale []string
		for id, raw := range all {
			var rec redisRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil || !rec.cachedKey().Valid(now) {
				stale = append(stale, id)
			}
		}
		if len(stale) == 0 && len(all) > 0 {
			continue
		}
		if len(stale) > 0 {
			if err := c.rdb.HDel(ctx, c.projectKey(p), stale...).Err(); err != nil {
				return removed, fmt.Errorf("cache: redis cleanup %s: %w", p, err)
			}
			removed += len(stale)
		}
		if len(stale) == len(all) {
			if err := c.rdb.ZRem(ctx, c.orderKey(), p).Err(); err != nil {
				return removed, fmt.Errorf("cache: redis cleanup %s: %w", p, err)
			}
		}
	}
	return removed, nil
}

// removeKeys deletes entries and unregisters the project once its hash
// is gone.
func (c *RedisKeyCache) removeKeys(ctx context.Context, projectID string, keyIDs ...string) {
	if err := c.rdb.HDel(ctx, c.projectKey(projectID), keyIDs...).Err(); err != nil {
		c.opts.onError(fmt.Errorf("cache: redis delete %s: %w", projectID, err))
		return
	}
	n, err := c.rdb.Exists(ctx, c.projectKey(projectID)).Result()
	if err != nil {
		c.opts.onError(fmt.Errorf("cache: redis exists %s: %w", projectID, err))
		return
	}
	if n == 0 {
		if err := c.rdb.ZRem(ctx, c.orderKey(), projectID).Err(); err != nil {
			c.opts.onError(fmt.Errorf("cache: redis unregister %s: %w", projectID, err))
		}
	}
}

// Ensure RedisKeyCache implements KeyStore
var _ KeyStore = (*RedisKeyCache)(nil)
