package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxIDLength is the maximum allowed length for a project or key id.
const MaxIDLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilStore        = errors.New("cache: key store is nil")
	ErrInvalidID       = errors.New("cache: id is invalid")
	ErrIDTooLong       = errors.New("cache: id exceeds max length")
	ErrMissingKeyID    = errors.New("cache: public key has no key id")
	ErrInvalidMaxSize  = errors.New("cache: max size must not be negative")
	ErrInvalidCacheTTL = errors.New("cache: ttl must not be negative")
)

// PublicKey is one verification key published by the auth service.
// A zero ExpiresAt means the key has no expiry.
type PublicKey struct {
	KeyID        string
	PublicKeyPEM string
	IsPrimary    bool
	ExpiresAt    time.Time
}

// Expired reports whether the key itself has expired at now.
func (k PublicKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// CachedKey is a PublicKey plus the instant its cache entry lapses.
// A zero CacheExpiresAt means the entry never lapses on its own.
type CachedKey struct {
	PublicKey
	CacheExpiresAt time.Time
}

// Valid reports whether the entry may be served at now: both the cache
// entry and the key must still be unexpired.
func (c CachedKey) Valid(now time.Time) bool {
	if !c.CacheExpiresAt.IsZero() && !now.Before(c.CacheExpiresAt) {
		return false
	}
	return !c.Expired(now)
}

// KeyStore caches public keys per project for graceful key rotation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Expiry: an entry is returned only while Valid(now); expired entries
// found on read are removed.
// - Errors: Get and GetAllActive never error; a backend failure is a miss.
// - Values: returned keys are copies; mutating them does not affect the store.
type KeyStore interface {
	// Get returns the key with keyID, or the first valid primary key of the
	// project when keyID is empty.
	Get(ctx context.Context, projectID, keyID string) (CachedKey, bool)

	// Set stores one key. A zero cacheUntil falls back to the policy TTL,
	// then to the key's own expiry.
	Set(ctx context.Context, projectID string, key PublicKey, cacheUntil time.Time) error

	// SetAllActive stores every key of a rotation set under one expiry.
	// An empty set is a no-op.
	SetAllActive(ctx context.Context, projectID string, keys []PublicKey, cacheUntil time.Time) error

	// GetAllActive returns all valid keys of a project, ordered by key id.
	GetAllActive(ctx context.Context, projectID string) []CachedKey

	// Invalidate drops every key of a project. Idempotent.
	Invalidate(ctx context.Context, projectID string) error

	// Clear drops every project.
	Clear(ctx context.Context) error

	// CleanupExpired removes expired entries and empty projects and
	// reports how many keys were removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// ValidateID checks if a project or key id is usable as a cache key.
func ValidateID(id string) error {
	if id == "" || strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	if len(id) > MaxIDLength {
		return ErrIDTooLong
	}
	if strings.ContainsAny(id, "\n\r") {
		return ErrInvalidID
	}
	return nil
}

// Option configures a KeyStore implementation.
type Option func(*options)

type options struct {
	now     func() time.Time
	onError func(error)
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithErrorHandler receives backend errors that Get and GetAllActive
// report as misses.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, onError: func(error) {}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onError == nil {
		o.onError = func(error) {}
	}
	return o
}
