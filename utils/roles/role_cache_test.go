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
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a manually advanced clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, config CacheConfig) (*RoleCache, *fakeClock) {
	t.Helper()
	cache, err := NewRoleCache(config, testLogger())
	if err != nil {
		t.Fatalf("NewRoleCache() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache.now = clock.Now
	return cache, clock
}

func enabledConfig(maxSize int, ttl time.Duration) CacheConfig {
	return CacheConfig{Enabled: true, MaxSize: maxSize, TTL: ttl}
}

func TestRoleCache_SetAndGet(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	testRoles := []*Role{{Name: "osmo-default"}, {Name: "osmo-user"}}
	cache.Set([]string{"osmo-user", "osmo-default"}, testRoles)

	found, ok := cache.Get([]string{"osmo-user", "osmo-default"})
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(found) != 2 || found[0].Name != "osmo-default" || found[1].Name != "osmo-user" {
		t.Errorf("unexpected roles: %+v", found)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 0 || stats.Size != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRoleCache_KeyOrderIndependent(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	cache.Set([]string{"b", "a"}, []*Role{{Name: "a"}, {Name: "b"}})
	if _, ok := cache.Get([]string{"a", "b"}); !ok {
		t.Error("expected hit for reordered role names")
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		names    []string
		expected string
	}{
		{[]string{"b", "a"}, "a,b"},
		{[]string{"osmo-default"}, "osmo-default"},
		{nil, ""},
		{[]string{"B", "a"}, "B,a"},
		{[]string{"a", "a"}, "a,a"},
	}

	for _, tt := range tests {
		if got := CacheKey(tt.names); got != tt.expected {
			t.Errorf("CacheKey(%v) = %q, want %q", tt.names, got, tt.expected)
		}
	}

	input := []string{"b", "a"}
	CacheKey(input)
	if input[0] != "b" {
		t.Error("CacheKey must not reorder its input")
	}
}

func TestRoleCache_Miss(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	if roles, ok := cache.Get([]string{"unknown"}); ok || roles != nil {
		t.Errorf("expected (nil, false), got (%v, %v)", roles, ok)
	}
	if stats := cache.Stats(); stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRoleCache_Expiration(t *testing.T) {
	cache, clock := newTestCache(t, enabledConfig(10, time.Minute))

	cache.Set([]string{"osmo-user"}, []*Role{{Name: "osmo-user"}})

	clock.Advance(time.Minute)
	if _, ok := cache.Get([]string{"osmo-user"}); !ok {
		t.Fatal("expected hit exactly at TTL")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := cache.Get([]string{"osmo-user"}); ok {
		t.Fatal("expected miss after TTL")
	}

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Expirations != 1 {
		t.Errorf("Expirations = %d, want 1", stats.Expirations)
	}
	if stats.Size != 0 {
		t.Errorf("Size = %d, want expired entry removed", stats.Size)
	}
}

func TestRoleCache_Capacity(t *testing.T) {
	const maxSize = 3
	cache, _ := newTestCache(t, enabledConfig(maxSize, time.Minute))

	for i := 0; i < maxSize; i++ {
		name := fmt.Sprintf("role-%d", i)
		cache.Set([]string{name}, []*Role{{Name: name}})
	}

	// Touch role-0 so role-1 becomes least recently used.
	if _, ok := cache.Get([]string{"role-0"}); !ok {
		t.Fatal("expected role-0 hit")
	}

	cache.Set([]string{"role-new"}, []*Role{{Name: "role-new"}})

	stats := cache.Stats()
	if stats.Size != maxSize {
		t.Errorf("Size = %d, want %d", stats.Size, maxSize)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if _, ok := cache.Get([]string{"role-1"}); ok {
		t.Error("expected least recently used role-1 to be evicted")
	}
	for _, name := range []string{"role-0", "role-2", "role-new"} {
		if _, ok := cache.Get([]string{name}); !ok {
			t.Errorf("expected %s to remain cached", name)
		}
	}
}

func TestRoleCache_SetOverwrite(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(2, time.Minute))

	cache.Set([]string{"osmo-user"}, []*Role{{Name: "osmo-user", Description: "old"}})
	cache.Set([]string{"osmo-user"}, []*Role{{Name: "osmo-user", Description: "new"}})

	found, ok := cache.Get([]string{"osmo-user"})
	if !ok || found[0].Description != "new" {
		t.Errorf("expected overwritten entry, got %+v", found)
	}
	if stats := cache.Stats(); stats.Size != 1 || stats.Evictions != 0 {
		t.Errorf("unexpected stats after overwrite: %+v", stats)
	}
}

func TestRoleCache_Disabled(t *testing.T) {
	cache, err := NewRoleCache(CacheConfig{Enabled: false}, testLogger())
	if err != nil {
		t.Fatalf("NewRoleCache() error = %v", err)
	}

	cache.Set([]string{"osmo-user"}, []*Role{{Name: "osmo-user"}})
	if _, ok := cache.Get([]string{"osmo-user"}); ok {
		t.Error("expected disabled cache to always miss")
	}

	cache.Clear()
	if n := cache.InvalidateRole("osmo-user"); n != 0 {
		t.Errorf("InvalidateRole() = %d, want 0", n)
	}

	stats := cache.Stats()
	if stats.Enabled || stats.Size != 0 || stats.Hits != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRoleCache_Clear(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	cache.Set([]string{"a"}, []*Role{{Name: "a"}})
	cache.Set([]string{"b"}, []*Role{{Name: "b"}})
	cache.Get([]string{"a"})
	cache.Clear()

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("Size = %d, want 0", stats.Size)
	}
	if stats.Hits != 1 || stats.Evictions != 0 {
		t.Errorf("Clear must not reset or bump counters: %+v", stats)
	}
	if _, ok := cache.Get([]string{"a"}); ok {
		t.Error("expected miss after Clear")
	}
}

func TestRoleCache_InvalidateRole(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	cache.Set([]string{"osmo-default", "osmo-user"}, nil)
	cache.Set([]string{"osmo-default", "osmo-admin"}, nil)
	cache.Set([]string{"osmo-default", "osmo-user-x"}, nil)

	if n := cache.InvalidateRole("osmo-user"); n != 1 {
		t.Errorf("InvalidateRole(osmo-user) = %d, want 1", n)
	}
	if _, ok := cache.Get([]string{"osmo-user-x", "osmo-default"}); !ok {
		t.Error("expected entry with similarly named role to survive")
	}
	if n := cache.InvalidateRole("osmo-default"); n != 2 {
		t.Errorf("InvalidateRole(osmo-default) = %d, want 2", n)
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Size = %d, want 0", size)
	}
}

func TestRoleCache_SetIfGeneration(t *testing.T) {
	names := []string{"osmo-default", "osmo-user"}
	stale := []*Role{{Name: "osmo-default"}, {Name: "osmo-user"}}

	tests := []struct {
		name       string
		invalidate func(c *RoleCache)
		wantStored bool
	}{
		{name: "no invalidation", invalidate: func(*RoleCache) {}, wantStored: true},
		{name: "invalidate role", invalidate: func(c *RoleCache) { c.InvalidateRole("osmo-user") }},
		{name: "invalidate unrelated role", invalidate: func(c *RoleCache) { c.InvalidateRole("osmo-admin") }},
		{name: "clear", invalidate: func(c *RoleCache) { c.Clear() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

			generation := cache.Generation()
			tt.invalidate(cache)

			if stored := cache.SetIfGeneration(names, stale, generation); stored != tt.wantStored {
				t.Errorf("SetIfGeneration() = %v, want %v", stored, tt.wantStored)
			}
			if _, ok := cache.Get(names); ok != tt.wantStored {
				t.Errorf("Get() found = %v, want %v", ok, tt.wantStored)
			}
		})
	}
}

func TestRoleCache_SetIfGenerationDisabled(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{Enabled: false})

	if stored := cache.SetIfGeneration([]string{"osmo-user"}, nil, cache.Generation()); stored {
		t.Error("SetIfGeneration() stored an entry in a disabled cache")
	}
}

func TestRoleCache_SetCopiesSlice(t *testing.T) {
	cache, _ := newTestCache(t, enabledConfig(10, time.Minute))

	input := []*Role{{Name: "a"}}
	cache.Set([]string{"a"}, input)
	input[0] = &Role{Name: "mutated"}

	found, _ := cache.Get([]string{"a"})
	if found[0].Name != "a" {
		t.Errorf("cached entry changed with caller slice: %q", found[0].Name)
	}
}

func TestRoleCache_Concurrent(t *testing.T) {
	const maxSize = 16
	cache, _ := newTestCache(t, enabledConfig(maxSize, time.Minute))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				names := []string{fmt.Sprintf("role-%d", (g*7+i)%40), "osmo-default"}
				if roles, ok := cache.Get(names); ok && len(roles) != 1 {
					t.Errorf("observed partial entry: %+v", roles)
					return
				}
				cache.Set(names, []*Role{{Name: names[0]}})
				if size := cache.Stats().Size; size > maxSize {
					t.Errorf("size %d exceeds max %d", size, maxSize)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	stats := cache.Stats()
	if stats.Hits+stats.Misses != 8*500 {
		t.Errorf("lost lookups: hits=%d misses=%d", stats.Hits, stats.Misses)
	}
}

func TestCacheConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  CacheConfig
		wantErr bool
	}{
		{"valid", enabledConfig(10, time.Minute), false},
		{"disabled ignores limits", CacheConfig{Enabled: false}, false},
		{"zero size", enabledConfig(0, time.Minute), true},
		{"negative size", enabledConfig(-1, time.Minute), true},
		{"zero ttl", enabledConfig(10, 0), true},
		{"negative ttl", enabledConfig(10, -time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCacheConfig) {
				t.Errorf("expected ErrInvalidCacheConfig, got %v", err)
			}
			if _, newErr := NewRoleCache(tt.config, nil); (newErr != nil) != tt.wantErr {
				t.Errorf("NewRoleCache() error = %v, wantErr %v", newErr, tt.wantErr)
			}
		})
	}
}

func TestCacheStats_HitRate(t *testing.T) {
	if rate := (CacheStats{}).HitRate(); rate != 0 {
		t.Errorf("HitRate() = %v, want 0", rate)
	}
	if rate := (CacheStats{Hits: 3, Misses: 1}).HitRate(); rate != 75 {
		t.Errorf("HitRate() = %v, want 75", rate)
	}
}
