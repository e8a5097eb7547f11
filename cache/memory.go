package cache

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryKeyCache is an in-process KeyStore.
type MemoryKeyCache struct {
	mu       sync.Mutex
	projects map[string]map[string]CachedKey
	order    []string // project ids, oldest insertion first
	policy   Policy
	opts     options
}

// NewMemoryKeyCache creates an in-memory key cache with the given policy.
func NewMemoryKeyCache(policy Policy, opts ...Option) *MemoryKeyCache {
	return &MemoryKeyCache{
		projects: make(map[string]map[string]CachedKey),
		policy:   policy,
		opts:     buildOptions(opts),
	}
}

// Get returns a valid key. Expired entries are removed lazily.
func (c *MemoryKeyCache) Get(_ context.Context, projectID, keyID string) (CachedKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.projects[projectID]
	if !ok {
		return CachedKey{}, false
	}
	now := c.opts.now()

	if keyID == "" {
		for _, id := range sortedIDs(keys) {
			k := keys[id]
			if !k.Valid(now) {
				delete(keys, id)
				continue
			}
			if k.IsPrimary {
				return k, true
			}
		}
		c.dropIfEmptyLocked(projectID)
		return CachedKey{}, false
	}

	k, ok := keys[keyID]
	if !ok {
		return CachedKey{}, false
	}
	if !k.Valid(now) {
		delete(keys, keyID)
		c.dropIfEmptyLocked(projectID)
		return CachedKey{}, false
	}
	return k, true
}

// Set stores one key under the project.
func (c *MemoryKeyCache) Set(_ context.Context, projectID string, key PublicKey, cacheUntil time.Time) error {
	if err := ValidateID(projectID); err != nil {
		return err
	}
	if key.KeyID == "" {
		return ErrMissingKeyID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	keys := c.projectLocked(projectID)
	keys[key.KeyID] = CachedKey{
		PublicKey:      key,
		CacheExpiresAt: c.policy.CacheExpiry(now, cacheUntil, key.ExpiresAt),
	}
	return nil
}

// SetAllActive stores a rotation set. Keys without a shared expiry fall
// back to their own expiry individually.
func (c *MemoryKeyCache) SetAllActive(_ context.Context, projectID string, keys []PublicKey, cacheUntil time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ValidateID(projectID); err != nil {
		return err
	}
	for _, k := range keys {
		if k.KeyID == "" {
			return ErrMissingKeyID
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	entries := c.projectLocked(projectID)
	for _, k := range keys {
		entries[k.KeyID] = CachedKey{
			PublicKey:      k,
			CacheExpiresAt: c.policy.CacheExpiry(now, cacheUntil, k.ExpiresAt),
		}
	}
	return nil
}

// GetAllActive returns all valid keys for the project. Expired entries
// are removed as they are found.
func (c *MemoryKeyCache) GetAllActive(_ context.Context, projectID string) []CachedKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.projects[projectID]
	if !ok {
		return nil
	}

	now := c.opts.now()
	var active []CachedKey
	for _, id := range sortedIDs(keys) {
		k := keys[id]
		if !k.Valid(now) {
			delete(keys, id)
			continue
		}
		active = append(active, k)
	}
	c.dropIfEmptyLocked(projectID)
	return active
}

// Invalidate drops the project.
func (c *MemoryKeyCache) Invalidate(_ context.Context, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeProjectLocked(projectID)
	return nil
}

// Clear drops every project.
func (c *MemoryKeyCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = make(map[string]map[string]CachedKey)
	c.order = nil
	return nil
}

// CleanupExpired removes expired keys and empty projects.
func (c *MemoryKeyCache) CleanupExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	removed := 0
	for _, projectID := range slices.Clone(c.order) {
		keys := c.projects[projectID]
		for id, k := range keys {
			if !k.Valid(now) {
				delete(keys, id)
				removed++
			}
		}
		c.dropIfEmptyLocked(projectID)
	}
	return removed, nil
}

// Len returns the number of cached projects.
func (c *MemoryKeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects)
}

// projectLocked returns the key map for projectID, creating it and
// evicting the oldest project first if the cache is full.
func (c *MemoryKeyCache) projectLocked(projectID string) map[string]CachedKey {
	if keys, ok := c.projects[projectID]; ok {
		return keys
	}
	if c.policy.atCapacity(len(c.projects)) && len(c.order) > 0 {
		c.removeProjectLocked(c.order[0])
	}
	keys := make(map[string]CachedKey)
	c.projects[projectID] = keys
	c.order = append(c.order, projectID)
	return keys
}

func (c *MemoryKeyCache) dropIfEmptyLocked(projectID string) {
	if keys, ok := c.projects[projectID]; ok && len(keys) == 0 {
		c.removeProjectLocked(projectID)
	}
}

func (c *MemoryKeyCache) removeProjectLocked(projectID string) {
	if _, ok := c.projects[projectID]; !ok {
		return
	}
	delete(c.projects, projectID)
	if i := slices.Index(c.order, projectID); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

func sortedIDs(keys map[string]CachedKey) []string {
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ensure MemoryKeyCache implements KeyStore
var _ KeyStore = (*MemoryKeyCache)(nil)
