package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker pings the Redis server backing a shared key cache.
type RedisChecker struct {
	name string
	rdb  redis.UniversalClient
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(name string, rdb redis.UniversalClient) *RedisChecker {
	if name == "" {
		name = "key_cache_redis"
	}
	return &RedisChecker{name: name, rdb: rdb}
}

// Name returns the checker name.
func (c *RedisChecker) Name() string {
	return c.name
}

// Check sends PING.
func (c *RedisChecker) Check(ctx context.Context) Result {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return Unhealthy("redis unreachable", err)
	}
	return Healthy("redis reachable")
}

// Ensure RedisChecker implements Checker
var _ Checker = (*RedisChecker)(nil)
