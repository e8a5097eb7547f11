package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisChecker("", rdb)
	if c.Name() != "key_cache_redis" {
		t.Errorf("Name() = %q", c.Name())
	}
	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Check() = %+v, want healthy", r)
	}

	mr.Close()
	if r := c.Check(context.Background()); r.Status != StatusUnhealthy || r.Error == nil {
		t.Errorf("Check() after close = %+v, want unhealthy", r)
	}
}
