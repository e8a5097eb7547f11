package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, policy Policy, clock *testClock) KeyStore

// runStoreSuite checks the KeyStore contract against one implementation.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	primary := func(clock *testClock, id string) PublicKey {
		return PublicKey{KeyID: id, PublicKeyPEM: "pem-" + id, IsPrimary: true, ExpiresAt: clock.Now().Add(time.Hour)}
	}
	secondary := func(clock *testClock, id string) PublicKey {
		return PublicKey{KeyID: id, PublicKeyPEM: "pem-" + id, ExpiresAt: clock.Now().Add(time.Hour)}
	}

	t.Run("set and get within window", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		key := primary(clock, "key-1")
		until := clock.Now().Add(1800 * time.Second)
		if err := s.Set(ctx, "project-1", key, until); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		clock.Advance(1799 * time.Second)
		got, ok := s.Get(ctx, "project-1", "key-1")
		if !ok {
			t.Fatal("Get() miss within cache window")
		}
		if got.KeyID != key.KeyID || got.PublicKeyPEM != key.PublicKeyPEM || got.IsPrimary != key.IsPrimary {
			t.Errorf("Get() = %+v, want %+v", got.PublicKey, key)
		}
		if !got.ExpiresAt.Equal(key.ExpiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, key.ExpiresAt)
		}
		if !got.CacheExpiresAt.Equal(until) {
			t.Errorf("CacheExpiresAt = %v, want %v", got.CacheExpiresAt, until)
		}
	})

	t.Run("read after cache expiry removes entry", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		_ = s.Set(ctx, "project-1", primary(clock, "key-1"), clock.Now().Add(1800*time.Second))
		_ = s.Set(ctx, "project-1", secondary(clock, "key-2"), clock.Now().Add(time.Hour))
		clock.Advance(1800 * time.Second)

		if _, ok := s.Get(ctx, "project-1", "key-1"); ok {
			t.Fatal("Get() hit after cache expiry")
		}
		clock.Advance(-time.Second)
		if _, ok := s.Get(ctx, "project-1", "key-1"); ok {
			t.Error("expired entry was not removed on read")
		}
		if _, ok := s.Get(ctx, "project-1", "key-2"); !ok {
			t.Error("unexpired sibling removed")
		}
	})

	t.Run("key expiry bounds cache expiry", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		key := primary(clock, "key-1")
		key.ExpiresAt = clock.Now().Add(time.Minute)
		_ = s.Set(ctx, "project-1", key, clock.Now().Add(time.Hour))

		clock.Advance(time.Minute)
		if _, ok := s.Get(ctx, "project-1", "key-1"); ok {
			t.Error("Get() served an expired key")
		}
	})

	t.Run("primary lookup", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		_ = s.Set(ctx, "project-1", secondary(clock, "old"), time.Time{})
		if _, ok := s.Get(ctx, "project-1", ""); ok {
			t.Fatal("Get(primary) hit with no primary cached")
		}

		_ = s.Set(ctx, "project-1", primary(clock, "new"), time.Time{})
		got, ok := s.Get(ctx, "project-1", "")
		if !ok || got.KeyID != "new" {
			t.Errorf("Get(primary) = %q, %v, want new, true", got.KeyID, ok)
		}
	})

	t.Run("get all active", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		until := clock.Now().Add(1800 * time.Second)
		_ = s.Set(ctx, "project-1", primary(clock, "key-1"), until)
		_ = s.Set(ctx, "project-1", secondary(clock, "key-2"), until)

		active := s.GetAllActive(ctx, "project-1")
		if len(active) != 2 {
			t.Fatalf("len(GetAllActive()) = %d, want 2", len(active))
		}
		if active[0].KeyID != "key-1" || active[1].KeyID != "key-2" {
			t.Errorf("GetAllActive() order = %s, %s", active[0].KeyID, active[1].KeyID)
		}

		if got := s.GetAllActive(ctx, "unknown"); len(got) != 0 {
			t.Errorf("GetAllActive(unknown) = %v, want empty", got)
		}
	})

	t.Run("get all active removes expired entries", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		_ = s.Set(ctx, "project-1", secondary(clock, "old"), clock.Now().Add(time.Second))
		_ = s.Set(ctx, "project-1", primary(clock, "new"), clock.Now().Add(time.Hour))
		_ = s.Set(ctx, "project-2", primary(clock, "gone"), clock.Now().Add(time.Second))
		clock.Advance(2 * time.Second)

		active := s.GetAllActive(ctx, "project-1")
		if len(active) != 1 || active[0].KeyID != "new" {
			t.Fatalf("GetAllActive() = %v, want [new]", active)
		}
		if got := s.GetAllActive(ctx, "project-2"); len(got) != 0 {
			t.Fatalf("GetAllActive(project-2) = %v, want empty", got)
		}

		removed, err := s.CleanupExpired(ctx)
		if err != nil {
			t.Fatalf("CleanupExpired() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("CleanupExpired() = %d after reads, want 0 left to remove", removed)
		}
	})

	t.Run("set all active rotation", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, Policy{}, clock)

		outgoing := primary(clock, "k-old")
		outgoing.ExpiresAt = clock.Now().Add(10 * time.Minute)
		incoming := secondary(clock, "k-new")
		incoming.ExpiresAt = clock.Now().Add(time.Hour)

		if err := s.SetAllActive(ctx, "project-1", []PublicKey{outgoing, incoming}, time.Time{}); err != nil {
			t.Fatalf("SetAllActive() error = %v", err)
		}
		if got := s.GetAllActive(ctx, "project-1"); len(got) != 2 {
			t.Fatalf("len(GetAllActive()) = %d, want 2", len(got))
		}

		clock.Advance(10 * time.Minute)
		got := s.GetAllActive(ctx, "project-1")
		if len(got) != 1 || got[0].KeyID != "k-new" {
			t.Errorf("GetAllActive() after outgoing expiry = %v, want only k-new", got)
		}

		if err := s.SetAllActive(ctx, "project-2", nil, time.Time{}); err != nil {
			t.Errorf("SetAllActive(empty) error = %v", err)
		}
		if got := s.GetAllActive(ctx, "project-2"); len(got) != 0 {
			t.Errorf("SetAllActive(empty) stored %v", got)
		}
	})

	t.Run("expiry precedence", func(t *testing.T) {
		clock := newTestClock()
		keyExpiry := clock.Now().Add(3 * time.Hour)
		key := PublicKey{KeyID: "k", IsPrimary: true, ExpiresAt: keyExpiry}

		withTTL := newStore(t, Policy{TTL: time.Hour}, clock)
		_ = withTTL.Set(ctx, "p", key, time.Time{})
		got, _ := withTTL.Get(ctx, "p", "k")
		if want := clock.Now().Add(time.Hour); !got.CacheExpiresAt.Equal(want) {
			t.Errorf("ttl: CacheExpiresAt = %v, want %v", got.CacheExpiresAt, want)
		}

		explicit := clock.Now().Add(2 * time.Hour)
		_ = withTTL.Set(ctx, "p", key, explicit)
		got, _ = withTTL.Get(ctx, "p", "k")
		if !got.CacheExpiresAt.Equal(explicit) {
			t.Errorf("cache_until: CacheExpiresAt = %v, want %v", got.CacheExpiresAt, explicit)
		}

		noTTL := newStore(t, Policy{}, clock)
		_ = noTTL.Set(ctx, "p", key, time.Time{})
		got, _ = noTTL.Get(ctx, "p", "k")
		if !got.CacheExpiresAt.Equal(keyExpiry) {
			t.Errorf("key expiry: CacheExpiresAt = %v, want %v", got.CacheExpiresAt, keyExpiry)
		}
	})

	t.Run("eviction of oldest project", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, Policy{TTL: time.Hour, MaxSize: 2}, clock)

		_ = s.Set(ctx, "a", primary(clock, "k"), time.Time{})
		_ = s.Set(ctx, "b", primary(clock, "k"), time.Time{})
		// Re-setting an existing project at capacity evicts nothing.
		_ = s.Set(ctx, "a", secondary(clock, "k2"), time.Time{})
		if _, ok := s.Get(ctx, "b", "k"); !ok {
			t.Fatal("existing project update evicted b")
		}

		_ = s.Set(ctx, "c", primary(clock, "k"), time.Time{})
		if _, ok := s.Get(ctx, "a", "k"); ok {
			t.Error("oldest project a still cached after eviction")
		}
		for _, p := range []string{"b", "c"} {
			if _, ok := s.Get(ctx, p, "k"); !ok {
				t.Errorf("project %s evicted, want kept", p)
			}
		}
	})

	t.Run("invalidate and clear", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		_ = s.Set(ctx, "project-1", primary(clock, "key-1"), time.Time{})
		_ = s.Set(ctx, "project-2", primary(clock, "key-1"), time.Time{})

		if err := s.Invalidate(ctx, "project-1"); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		if _, ok := s.Get(ctx, "project-1", "key-1"); ok {
			t.Error("Get() hit after Invalidate")
		}
		if _, ok := s.Get(ctx, "project-2", "key-1"); !ok {
			t.Error("Invalidate dropped another project")
		}
		if err := s.Invalidate(ctx, "project-1"); err != nil {
			t.Errorf("second Invalidate() error = %v", err)
		}

		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, ok := s.Get(ctx, "project-2", "key-1"); ok {
			t.Error("Get() hit after Clear")
		}
	})

	t.Run("cleanup expired", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		_ = s.Set(ctx, "short", primary(clock, "k1"), clock.Now().Add(time.Minute))
		_ = s.Set(ctx, "mixed", primary(clock, "k1"), clock.Now().Add(time.Minute))
		_ = s.Set(ctx, "mixed", secondary(clock, "k2"), clock.Now().Add(time.Hour))

		clock.Advance(2 * time.Minute)
		removed, err := s.CleanupExpired(ctx)
		if err != nil {
			t.Fatalf("CleanupExpired() error = %v", err)
		}
		if removed != 2 {
			t.Errorf("CleanupExpired() removed = %d, want 2", removed)
		}
		if got := s.GetAllActive(ctx, "mixed"); len(got) != 1 {
			t.Errorf("mixed project keys = %d, want 1", len(got))
		}

		// The emptied project no longer counts towards capacity.
		small := newStore(t, Policy{MaxSize: 1}, clock)
		_ = small.Set(ctx, "gone", primary(clock, "k"), clock.Now().Add(time.Second))
		clock.Advance(time.Second)
		_, _ = small.CleanupExpired(ctx)
		_ = small.Set(ctx, "next", primary(clock, "k"), time.Time{})
		if _, ok := small.Get(ctx, "next", "k"); !ok {
			t.Error("Get(next) miss after cleanup")
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, DefaultPolicy(), clock)

		if err := s.Set(ctx, "", primary(clock, "k"), time.Time{}); err == nil {
			t.Error("Set(empty project) error = nil")
		}
		if err := s.Set(ctx, "p", PublicKey{}, time.Time{}); err == nil {
			t.Error("Set(no key id) error = nil")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, Policy{TTL: time.Hour, MaxSize: 8}, clock)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				project := fmt.Sprintf("p-%d", i%4)
				for j := 0; j < 20; j++ {
					_ = s.Set(ctx, project, primary(clock, fmt.Sprintf("k-%d", j%3)), time.Time{})
					s.Get(ctx, project, "")
					s.GetAllActive(ctx, project)
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 4; i++ {
			if got := s.GetAllActive(ctx, fmt.Sprintf("p-%d", i)); len(got) != 3 {
				t.Errorf("p-%d keys = %d, want 3", i, len(got))
			}
		}
	})
}
