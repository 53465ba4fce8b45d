/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package roles

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"go.corp.nvidia.com/osmo-authz/utils"
)

const (
	DefaultCacheMaxSize = 1000
	DefaultCacheTTL     = 5 * time.Minute

	// cacheKeySeparator joins sorted role names into a cache key. Role names
	// come from a comma-separated header, so they never contain it.
	cacheKeySeparator = ","
)

// ErrInvalidCacheConfig is returned when the cache configuration cannot be served.
var ErrInvalidCacheConfig = errors.New("invalid role cache configuration")

// CacheConfig holds cache configuration
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
}

// Validate rejects configurations the cache cannot honor. A disabled cache is
// always valid.
func (c CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidCacheConfig, c.MaxSize)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidCacheConfig, c.TTL)
	}
	return nil
}

// CacheFlagPointers holds pointers to flag values for cache configuration
type CacheFlagPointers struct {
	enabled *bool
	ttl     *time.Duration
	maxSize *int
}

// RegisterCacheFlags registers cache-related command-line flags.
// Returns a CacheFlagPointers that should be converted to CacheConfig
// after flag.Parse() is called.
func RegisterCacheFlags() *CacheFlagPointers {
	return &CacheFlagPointers{
		enabled: flag.Bool("cache-enabled",
			utils.GetEnvBool("OSMO_CACHE_ENABLED", true),
			"Enable role caching"),
		ttl: flag.Duration("cache-ttl",
			utils.GetEnvDuration("OSMO_CACHE_TTL", DefaultCacheTTL),
			"Cache TTL for resolved role sets"),
		maxSize: flag.Int("cache-max-size",
			utils.GetEnvInt("OSMO_CACHE_MAX_SIZE", DefaultCacheMaxSize),
			"Maximum number of cached role sets"),
	}
}

// ToCacheConfig converts flag pointers to CacheConfig.
// This should be called after flag.Parse().
func (p *CacheFlagPointers) ToCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: *p.enabled,
		TTL:     *p.ttl,
		MaxSize: *p.maxSize,
	}
}

// CacheStats is a point-in-time snapshot of cache counters.
// Hits, Misses, Evictions and Expirations only ever increase.
type CacheStats struct {
	Enabled     bool          `json:"enabled"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	Expirations int64         `json:"expirations"`
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	TTL         time.Duration `json:"ttl"`
}

// HitRate returns hits / (hits + misses) as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// cachedRoles holds resolved roles with expiration timestamp.
// Entries are replaced wholesale, never mutated.
type cachedRoles struct {
	roles     []*Role
	expiresAt time.Time
}

// RoleCache caches resolved role definitions keyed by the canonical role-name
// set. It evicts in least-recently-used order once MaxSize entries are held
// and treats entries older than TTL as misses. Safe for concurrent use.
type RoleCache struct {
	config CacheConfig
	logger *slog.Logger
	now    func() time.Time

	// mu guards entries. Lookups reorder the LRU list, so even Get needs
	// exclusive access; the critical section is a map lookup and a list move.
	mu      sync.Mutex
	entries *simplelru.LRU[string, *cachedRoles]
	// generation advances on every Clear and InvalidateRole. Guarded by mu.
	generation uint64

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// NewRoleCache creates a new role cache. With caching disabled every Get is a
// miss and Set is a no-op.
func NewRoleCache(config CacheConfig, logger *slog.Logger) (*RoleCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache := &RoleCache{
		config: config,
		logger: logger,
		now:    time.Now,
	}

	if config.Enabled {
		entries, err := simplelru.NewLRU[string, *cachedRoles](config.MaxSize, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCacheConfig, err)
		}
		cache.entries = entries
	}

	return cache, nil
}

// CacheKey returns the canonical cache key for a role-name set: the names
// sorted and joined with ",". Comparison is case-sensitive and duplicates are
// kept, so the key reflects exactly the requested list.
func CacheKey(roleNames []string) string {
	sorted := slices.Clone(roleNames)
	slices.Sort(sorted)
	return strings.Join(sorted, cacheKeySeparator)
}

// Get retrieves roles from cache by role names.
// Returns the roles and a boolean indicating if found and not expired.
// An expired entry is removed and reported as a miss.
func (c *RoleCache) Get(roleNames []string) ([]*Role, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	key := CacheKey(roleNames)

	c.mu.Lock()
	cached, found := c.entries.Get(key)
	expired := found && c.now().After(cached.expiresAt)
	if expired {
		c.entries.Remove(key)
	}
	c.mu.Unlock()

	if !found || expired {
		c.misses.Add(1)
		if expired {
			c.expirations.Add(1)
		}
		c.logger.Debug("role cache miss",
			slog.String("key", key),
			slog.Bool("expired", expired),
		)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("role cache hit", slog.String("key", key))
	return cached.roles, true
}

// Generation returns the current invalidation generation. Capture it before
// fetching roles from the store and pass it to SetIfGeneration.
func (c *RoleCache) Generation() uint64 {
	if !c.config.Enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Set stores roles in cache with the configured TTL. When the cache is full
// the least recently used entry is evicted first.
func (c *RoleCache) Set(roleNames []string, roles []*Role) {
	c.set(roleNames, roles, 0, false)
}

// SetIfGeneration stores roles only if no Clear or InvalidateRole ran since
// generation was read. It reports whether the entry was stored.
func (c *RoleCache) SetIfGeneration(roleNames []string, roles []*Role, generation uint64) bool {
	return c.set(roleNames, roles, generation, true)
}

func (c *RoleCache) set(roleNames []string, roles []*Role, generation uint64, checkGeneration bool) bool {
	if !c.config.Enabled {
		return false
	}

	key := CacheKey(roleNames)
	cached := &cachedRoles{
		roles:     slices.Clone(roles),
		expiresAt: c.now().Add(c.config.TTL),
	}

	c.mu.Lock()
	if checkGeneration && generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug("role cache set skipped after invalidation",
			slog.String("key", key),
			slog.Uint64("generation", generation),
		)
		return false
	}
	evicted := c.entries.Add(key, cached)
	c.mu.Unlock()

	if evicted {
		c.evictions.Add(1)
	}

	c.logger.Debug("role cache set",
		slog.String("key", key),
		slog.Int("roles_count", len(roles)),
		slog.Bool("evicted", evicted),
	)
	return true
}

// InvalidateRole removes every cached role set that includes roleName and
// returns how many entries were dropped.
func (c *RoleCache) InvalidateRole(roleName string) int {
	if !c.config.Enabled {
		return 0
	}

	c.mu.Lock()
	c.generation++
	removed := 0
	for _, key := range c.entries.Keys() {
		if slices.Contains(strings.Split(key, cacheKeySeparator), roleName) {
			c.entries.Remove(key)
			removed++
		}
	}
	c.mu.Unlock()

	c.logger.Info("role cache entries invalidated",
		slog.String("role", roleName),
		slog.Int("removed", removed),
	)
	return removed
}

// Clear removes all entries from the cache
func (c *RoleCache) Clear() {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	c.generation++
	c.entries.Purge()
	c.mu.Unlock()

	c.logger.Info("role cache cleared")
}

// Stats returns cache statistics
func (c *RoleCache) Stats() CacheStats {
	stats := CacheStats{
		Enabled:     c.config.Enabled,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		MaxSize:     c.config.MaxSize,
		TTL:         c.config.TTL,
	}
	if c.config.Enabled {
		c.mu.Lock()
		stats.Size = c.entries.Len()
		c.mu.Unlock()
	}
	return stats
}
