package cache

import "time"

// Policy configures key caching behavior.
type Policy struct {
	// TTL is the cache lifetime used when the service supplies no
	// cache_until. If zero, entries fall back to the key's own expiry.
	TTL time.Duration

	// MaxSize bounds the number of cached projects. When a new project
	// arrives at capacity the oldest inserted project is evicted.
	// If zero, the cache is unbounded.
	MaxSize int
}

// DefaultPolicy returns the default key caching policy.
// TTL: 1 hour, MaxSize: 100 projects
func DefaultPolicy() Policy {
	return Policy{
		TTL:     time.Hour,
		MaxSize: 100,
	}
}

// Validate rejects negative bounds.
func (p Policy) Validate() error {
	if p.TTL < 0 {
		return ErrInvalidCacheTTL
	}
	if p.MaxSize < 0 {
		return ErrInvalidMaxSize
	}
	return nil
}

// CacheExpiry returns the instant a new entry lapses.
//
// Precedence: an explicit cacheUntil, then now+TTL, then the key's own
// expiry. A zero result means the entry does not lapse on its own.
func (p Policy) CacheExpiry(now, cacheUntil, keyExpiresAt time.Time) time.Time {
	switch {
	case !cacheUntil.IsZero():
		return cacheUntil
	case p.TTL > 0:
		return now.Add(p.TTL)
	default:
		return keyExpiresAt
	}
}

// atCapacity reports whether adding a new project requires an eviction.
func (p Policy) atCapacity(projects int) bool {
	return p.MaxSize > 0 && projects >= p.MaxSize
}
