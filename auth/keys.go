package auth

import (
	"context"
	"crypto"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/client"
)

// KeyFetcher retrieves the auth service's public keys, usually through the
// client's key cache.
type KeyFetcher interface {
	GetPublicKey(ctx context.Context, projectID, keyID string, opts ...client.CallOption) (cache.CachedKey, error)
	ActivePublicKeys(ctx context.Context, projectID string, opts ...client.CallOption) ([]cache.CachedKey, error)
	InvalidateKeys(ctx context.Context, projectID string) error
}

// VerificationKey is a parsed public key ready for signature checks.
type VerificationKey struct {
	KeyID     string
	Key       crypto.PublicKey
	IsPrimary bool
}

// KeyProvider supplies verification keys.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines.
// - Keys returns at least one key or an error.
type KeyProvider interface {
	// Keys returns the candidate keys for a token's kid: the matching key
	// when known, otherwise every active key of the rotation set.
	Keys(ctx context.Context, keyID string) ([]VerificationKey, error)

	// Refresh discards cached keys and fetches the rotation set again.
	Refresh(ctx context.Context) error
}

// CachedKeyProviderConfig configures a CachedKeyProvider.
type CachedKeyProviderConfig struct {
	// ProjectID selects the project's keys. Empty uses the fetcher's
	// default project.
	ProjectID string

	// MinRefreshInterval bounds how often Refresh reaches the service.
	// Default: 30s
	MinRefreshInterval time.Duration

	// Now is the time source. Default: time.Now
	Now func() time.Time
}

// CachedKeyProvider turns PEM keys from a KeyFetcher into verification
// keys. Parsed keys are memoized by key id and PEM, and the last good set
// is served when the service cannot be reached.
type CachedKeyProvider struct {
	fetcher KeyFetcher
	config  CachedKeyProviderConfig

	mu          sync.RWMutex
	parsed      map[string]parsedKey
	lastRefresh time.Time
	sfGroup     singleflight.Group
}

type parsedKey struct {
	pem string
	key VerificationKey
}

// NewCachedKeyProvider creates a key provider over fetcher.
func NewCachedKeyProvider(fetcher KeyFetcher, config CachedKeyProviderConfig) (*CachedKeyProvider, error) {
	if fetcher == nil {
		return nil, ErrNilKeyFetcher.Clone()
	}
	if config.MinRefreshInterval <= 0 {
		config.MinRefreshInterval = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CachedKeyProvider{
		fetcher: fetcher,
		config:  config,
		parsed:  make(map[string]parsedKey),
	}, nil
}

// Keys returns the key for keyID, or all active keys when keyID is empty
// or unknown to the service.
func (p *CachedKeyProvider) Keys(ctx context.Context, keyID string) ([]VerificationKey, error) {
	if keyID != "" {
		k, err := p.fetcher.GetPublicKey(ctx, p.config.ProjectID, keyID)
		switch {
		case err == nil:
			vk, err := p.parse(k.PublicKey)
			if err != nil {
				return nil, err
			}
			return []VerificationKey{vk}, nil
		case errors.Is(err, autherr.ErrNotFound):
			// Fall through to the rotation set.
		default:
			if vk, ok := p.lookupBackup(keyID); ok {
				return []VerificationKey{vk}, nil
			}
			return nil, err
		}
	}

	active, err := p.fetcher.ActivePublicKeys(ctx, p.config.ProjectID)
	if err != nil {
		if keys := p.backup(); len(keys) > 0 && !errors.Is(err, autherr.ErrNotFound) {
			return keys, nil
		}
		return nil, err
	}

	keys := make([]VerificationKey, 0, len(active))
	for _, k := range active {
		vk, err := p.parse(k.PublicKey)
		if err != nil {
			continue
		}
		keys = append(keys, vk)
	}
	if len(keys) == 0 {
		return nil, ErrKeyNotFound.Clone()
	}
	return keys, nil
}

// Refresh invalidates the project's cached keys and fetches them again.
// Calls within MinRefreshInterval of the last refresh are no-ops, and
// concurrent calls share one fetch.
func (p *CachedKeyProvider) Refresh(ctx context.Context) error {
	_, err, _ := p.sfGroup.Do("refresh", func() (any, error) {
		now := p.config.Now()
		p.mu.RLock()
		recent := !p.lastRefresh.IsZero() && now.Sub(p.lastRefresh) < p.config.MinRefreshInterval
		p.mu.RUnlock()
		if recent {
			return nil, nil
		}

		if err := p.fetcher.InvalidateKeys(ctx, p.config.ProjectID); err != nil {
			return nil, err
		}
		active, err := p.fetcher.ActivePublicKeys(ctx, p.config.ProjectID)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.lastRefresh = now
		p.mu.Unlock()

		for _, k := range active {
			_, _ = p.parse(k.PublicKey)
		}
		return nil, nil
	})
	return err
}

// parse returns the memoized key for k, parsing its PEM on first use or
// after the PEM changed.
func (p *CachedKeyProvider) parse(k cache.PublicKey) (VerificationKey, error) {
	p.mu.RLock()
	cached, ok := p.parsed[k.KeyID]
	p.mu.RUnlock()
	if ok && cached.pem == k.PublicKeyPEM {
		cached.key.IsPrimary = k.IsPrimary
		return cached.key, nil
	}

	pub, err := ParsePublicKeyPEM([]byte(k.PublicKeyPEM))
	if err != nil {
		return VerificationKey{}, err
	}
	vk := VerificationKey{KeyID: k.KeyID, Key: pub, IsPrimary: k.IsPrimary}

	p.mu.Lock()
	p.parsed[k.KeyID] = parsedKey{pem: k.PublicKeyPEM, key: vk}
	p.mu.Unlock()
	return vk, nil
}

func (p *CachedKeyProvider) lookupBackup(keyID string) (VerificationKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pk, ok := p.parsed[keyID]
	return pk.key, ok
}

func (p *CachedKeyProvider) backup() []VerificationKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]VerificationKey, 0, len(p.parsed))
	for _, pk := range p.parsed {
		keys = append(keys, pk.key)
	}
	return keys
}

// ParsePublicKeyPEM parses an RSA, ECDSA or Ed25519 public key.
func ParsePublicKeyPEM(pem []byte) (crypto.PublicKey, error) {
	if rsaKey, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return rsaKey, nil
	}
	if ecKey, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return ecKey, nil
	}
	if edKey, err := jwt.ParseEdPublicKeyFromPEM(pem); err == nil {
		return edKey, nil
	}
	return nil, ErrUnsupportedKey.Clone()
}

// StaticKeyProvider serves a fixed set of keys.
type StaticKeyProvider struct {
	keys []VerificationKey
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(keys ...VerificationKey) *StaticKeyProvider {
	return &StaticKeyProvider{keys: keys}
}

// Keys returns the key with keyID, or every key when keyID is empty or
// unknown.
func (p *StaticKeyProvider) Keys(_ context.Context, keyID string) ([]VerificationKey, error) {
	if len(p.keys) == 0 {
		return nil, ErrKeyNotFound.Clone()
	}
	for _, k := range p.keys {
		if keyID != "" && k.KeyID == keyID {
			return []VerificationKey{k}, nil
		}
	}
	return p.keys, nil
}

// Refresh is a no-op.
func (p *StaticKeyProvider) Refresh(context.Context) error { return nil }

// Ensure CachedKeyProvider implements KeyProvider
var _ KeyProvider = (*CachedKeyProvider)(nil)

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)

// Ensure *client.Client implements KeyFetcher
var _ KeyFetcher = (*client.Client)(nil)
