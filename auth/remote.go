package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/client"
)

// Caller performs a JATP call. *client.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, payload map[string]any, opts ...client.CallOption) (map[string]any, error)
}

// RemoteConfig configures verification through the auth service.
type RemoteConfig struct {
	// ProjectID is sent with API key validation. Required for VerifyAPIKey.
	ProjectID string

	// SkipBlacklist asks the service not to consult its revocation list.
	SkipBlacklist bool

	// CacheTTL is how long positive results are reused. The entry never
	// outlives the identity's own expiry. Zero disables caching.
	CacheTTL time.Duration

	// MaxCacheEntries bounds the result cache.
	// Default: 1024
	MaxCacheEntries int

	Claims ClaimsMapping

	// CallOptions are applied to every call, e.g. client.WithServiceAuth.
	CallOptions []client.CallOption

	// Now is the time source. Default: time.Now
	Now func() time.Time
}

// RemoteVerifier asks JWTService.ValidateToken and
// APIKeyService.ValidateAPIKey. Revoked tokens are only detected this way.
type RemoteVerifier struct {
	config RemoteConfig
	caller Caller
	cache  *resultCache
}

// NewRemoteVerifier creates a remote verifier.
func NewRemoteVerifier(config RemoteConfig, caller Caller) (*RemoteVerifier, error) {
	if caller == nil {
		return nil, ErrNilCaller.Clone()
	}
	if config.MaxCacheEntries <= 0 {
		config.MaxCacheEntries = 1024
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RemoteVerifier{
		config: config,
		caller: caller,
		cache:  newResultCache(config.MaxCacheEntries, config.Now),
	}, nil
}

// Verify validates a token with the auth service.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken.Clone()
	}

	cacheKey := hashForCache("token", token)
	if id := v.cache.Get(cacheKey); id != nil {
		return id, nil
	}

	data, err := v.caller.Call(ctx, client.MethodValidateToken, map[string]any{
		"token":           token,
		"check_blacklist": !v.config.SkipBlacklist,
	}, v.config.CallOptions...)
	if err != nil {
		return nil, err
	}
	if err := rejection(data, ErrTokenInactive); err != nil {
		return nil, err
	}

	claims, _ := data["claims"].(map[string]any)
	id := identityFromClaims(claims, v.config.Claims, AuthMethodRemote)
	v.remember(cacheKey, id)
	return id, nil
}

// VerifyAPIKey validates an API key with the auth service. When scopes are
// given the service also checks the key grants all of them.
func (v *RemoteVerifier) VerifyAPIKey(ctx context.Context, apiKey string, scopes ...string) (*Identity, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingToken.Clone()
	}
	if v.config.ProjectID == "" {
		return nil, client.ErrMissingProjectID.Clone()
	}

	cacheKey := hashForCache("api_key", apiKey, scopes...)
	if id := v.cache.Get(cacheKey); id != nil {
		return id, nil
	}

	payload := map[string]any{
		"apiKey":    apiKey,
		"projectId": v.config.ProjectID,
	}
	if len(scopes) > 0 {
		payload["requiredScopes"] = scopes
	}
	data, err := v.caller.Call(ctx, client.MethodValidateAPIKey, payload, v.config.CallOptions...)
	if err != nil {
		return nil, err
	}
	if err := rejection(data, ErrAPIKeyInvalid); err != nil {
		return nil, err
	}

	metadata, _ := data["metadata"].(map[string]any)
	id := &Identity{
		Subject:   claimString(data, "user_id", "userId"),
		ProjectID: claimString(data, "project_id", "projectId"),
		Scopes:    claimStrings(data, "scopes"),
		Method:    AuthMethodAPIKey,
		Claims:    metadata,
	}
	if id.ProjectID == "" {
		id.ProjectID = v.config.ProjectID
	}
	v.remember(cacheKey, id)
	return id, nil
}

func (v *RemoteVerifier) remember(key string, id *Identity) {
	if v.config.CacheTTL <= 0 {
		return
	}
	expires := v.config.Now().Add(v.config.CacheTTL)
	if !id.ExpiresAt.IsZero() && id.ExpiresAt.Before(expires) {
		expires = id.ExpiresAt
	}
	v.cache.Set(key, id, expires)
}

// rejection turns a valid=false response into an error. A wire error code
// is translated like a failed envelope; otherwise fallback is returned.
func rejection(data map[string]any, fallback *autherr.Error) error {
	if valid, _ := data["valid"].(bool); valid {
		return nil
	}
	code := claimString(data, "error_code", "errorCode")
	message := claimString(data, "error")
	if code == "" {
		if message == "" {
			return fallback.Clone()
		}
		return autherr.Wrap(fallback.Kind, fallback, message)
	}
	if message == "" {
		message = fallback.Message
	}
	return autherr.FromWire(code, message, nil)
}

// hashForCache derives a cache key so raw credentials are never held.
func hashForCache(kind, secret string, extra ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	for _, e := range extra {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// resultCache holds positive verification results until they expire.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]resultEntry
	max     int
	now     func() time.Time
}

type resultEntry struct {
	identity  *Identity
	expiresAt time.Time
}

func newResultCache(max int, now func() time.Time) *resultCache {
	return &resultCache{entries: make(map[string]resultEntry), max: max, now: now}
}

// Get returns a cached identity, or nil.
func (c *resultCache) Get(key string) *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil
	}
	return entry.identity
}

// Set stores an identity. At capacity, expired entries are pruned first;
// if none were expired an arbitrary entry is dropped.
func (c *resultCache) Set(key string, id *Identity, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		now := c.now()
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.max {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[key] = resultEntry{identity: id, expiresAt: expiresAt}
}

// Len returns the number of entries, expired or not.
func (c *resultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure RemoteVerifier implements TokenVerifier
var _ TokenVerifier = (*RemoteVerifier)(nil)

// Ensure *client.Client implements Caller
var _ Caller = (*client.Client)(nil)
