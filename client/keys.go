package client

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/observe"
)

// PublicKeyResponse is the data of a JWTService.GetPublicKey response.
type PublicKeyResponse struct {
	PublicKeyPEM string
	Algorithm    string
	KeyID        string
	ProjectID    string

	// CacheUntil is when the service wants the keys re-fetched. Zero when
	// the service did not say.
	CacheUntil time.Time

	// ActiveKeys is the rotation set: every key tokens may currently be
	// signed with.
	ActiveKeys []cache.PublicKey
}

// ParsePublicKeyResponse reads response data. Both snake_case and
// camelCase field names are accepted.
func ParsePublicKeyResponse(data map[string]any) PublicKeyResponse {
	resp := PublicKeyResponse{
		PublicKeyPEM: stringField(data, "public_key_pem", "publicKeyPem"),
		Algorithm:    stringField(data, "algorithm"),
		KeyID:        stringField(data, "key_id", "keyId"),
		ProjectID:    stringField(data, "project_id", "projectId"),
		CacheUntil:   unixField(data, "cache_until", "cacheUntil"),
	}

	raw, _ := firstField(data, "active_keys", "activeKeys")
	if list, ok := raw.([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			k := cache.PublicKey{
				KeyID:        stringField(m, "key_id", "keyId"),
				PublicKeyPEM: stringField(m, "public_key_pem", "publicKeyPem"),
				IsPrimary:    boolField(m, "is_primary", "isPrimary"),
				ExpiresAt:    unixField(m, "expires_at", "expiresAt"),
			}
			if k.KeyID != "" {
				resp.ActiveKeys = append(resp.ActiveKeys, k)
			}
		}
	}
	return resp
}

// Keys returns the keys to cache: the rotation set, or the single key
// as primary when the service sent no set.
func (r PublicKeyResponse) Keys() []cache.PublicKey {
	if len(r.ActiveKeys) > 0 {
		return r.ActiveKeys
	}
	if r.KeyID == "" || r.PublicKeyPEM == "" {
		return nil
	}
	return []cache.PublicKey{{KeyID: r.KeyID, PublicKeyPEM: r.PublicKeyPEM, IsPrimary: true}}
}

// FetchPublicKey calls JWTService.GetPublicKey without consulting the cache.
func (c *Client) FetchPublicKey(ctx context.Context, projectID, keyID string, opts ...CallOption) (PublicKeyResponse, error) {
	projectID, err := c.project(projectID)
	if err != nil {
		return PublicKeyResponse{}, err
	}

	payload := map[string]any{"project_id": projectID}
	if keyID != "" {
		payload["key_id"] = keyID
	}
	data, err := c.Call(ctx, MethodGetPublicKey, payload, opts...)
	if err != nil {
		return PublicKeyResponse{}, err
	}
	return ParsePublicKeyResponse(data), nil
}

// GetPublicKey returns a verification key, from the cache when possible.
//
// An empty keyID asks for the project's primary key. On a miss the keys
// are fetched from the service and the whole rotation set is cached until
// the response's cache_until. Concurrent misses for the same key share one
// fetch.
func (c *Client) GetPublicKey(ctx context.Context, projectID, keyID string, opts ...CallOption) (cache.CachedKey, error) {
	projectID, err := c.project(projectID)
	if err != nil {
		return cache.CachedKey{}, err
	}

	if k, ok := c.keys.Get(ctx, projectID, keyID); ok {
		return k, nil
	}

	v, err, _ := c.fetches.Do(projectID+"\x00"+keyID, func() (any, error) {
		resp, err := c.refresh(ctx, projectID, keyID, opts)
		if err != nil {
			return nil, err
		}
		if k, ok := c.keys.Get(ctx, projectID, keyID); ok {
			return k, nil
		}
		// Keys the store refused (already expired, or evicted at once) are
		// served from the response.
		for _, k := range resp.Keys() {
			if (keyID == "" && k.IsPrimary) || k.KeyID == keyID {
				return cache.CachedKey{PublicKey: k, CacheExpiresAt: resp.CacheUntil}, nil
			}
		}
		return nil, ErrKeyNotFound.Clone()
	})
	if err != nil {
		return cache.CachedKey{}, err
	}
	return v.(cache.CachedKey), nil
}

// ActivePublicKeys returns every valid key of the project's rotation set,
// fetching it when the cache has none.
func (c *Client) ActivePublicKeys(ctx context.Context, projectID string, opts ...CallOption) ([]cache.CachedKey, error) {
	projectID, err := c.project(projectID)
	if err != nil {
		return nil, err
	}

	if keys := c.keys.GetAllActive(ctx, projectID); len(keys) > 0 {
		return keys, nil
	}

	v, err, _ := c.fetches.Do(projectID+"\x00*", func() (any, error) {
		resp, err := c.refresh(ctx, projectID, "", opts)
		if err != nil {
			return nil, err
		}
		if keys := c.keys.GetAllActive(ctx, projectID); len(keys) > 0 {
			return keys, nil
		}
		keys := make([]cache.CachedKey, 0, len(resp.Keys()))
		for _, k := range resp.Keys() {
			keys = append(keys, cache.CachedKey{PublicKey: k, CacheExpiresAt: resp.CacheUntil})
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]cache.CachedKey), nil
}

// InvalidateKeys drops the cached keys of a project so the next lookup
// fetches them again.
func (c *Client) InvalidateKeys(ctx context.Context, projectID string) error {
	projectID, err := c.project(projectID)
	if err != nil {
		return err
	}
	return c.keys.Invalidate(ctx, projectID)
}

// refresh fetches keys and stores them. A cache write failure is logged;
// the fetched keys are still returned.
func (c *Client) refresh(ctx context.Context, projectID, keyID string, opts []CallOption) (PublicKeyResponse, error) {
	resp, err := c.FetchPublicKey(ctx, projectID, keyID, opts...)
	if err != nil {
		return PublicKeyResponse{}, err
	}

	var storeErr error
	if len(resp.ActiveKeys) > 0 {
		storeErr = c.keys.SetAllActive(ctx, projectID, resp.ActiveKeys, resp.CacheUntil)
	} else if keys := resp.Keys(); len(keys) == 1 {
		storeErr = c.keys.Set(ctx, projectID, keys[0], resp.CacheUntil)
	}
	if storeErr != nil {
		c.mw.Logger().Warn(ctx, "public key cache write failed",
			observe.Field{Key: "project_id", Value: projectID},
			observe.Field{Key: "error", Value: storeErr.Error()},
		)
	}
	return resp, nil
}

func (c *Client) project(projectID string) (string, error) {
	if projectID == "" {
		projectID = c.projectID
	}
	if projectID == "" {
		return "", ErrMissingProjectID.Clone()
	}
	return projectID, nil
}

func firstField(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	v, _ := firstField(m, keys...)
	s, _ := v.(string)
	return s
}

func boolField(m map[string]any, keys ...string) bool {
	v, _ := firstField(m, keys...)
	b, _ := v.(bool)
	return b
}

// intField reads an integer that JSON decoding may have turned into a
// float64. Absent or malformed values yield 0.
func intField(m map[string]any, keys ...string) int64 {
	v, _ := firstField(m, keys...)
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// unixField reads a Unix timestamp in seconds. Zero and absent values
// yield the zero time.
func unixField(m map[string]any, keys ...string) time.Time {
	secs := intField(m, keys...)
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
