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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"go.corp.nvidia.com/osmo-authz/internal/auth"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

type poolListerFunc func(ctx context.Context) ([]string, error)

func (f poolListerFunc) ListPoolNames(ctx context.Context) ([]string, error) {
	return f(ctx)
}

func poolRoles() []*roles.Role {
	return append(testRoles(), &roles.Role{
		Name: "team-a",
		Policies: []roles.RolePolicy{{
			Actions:   []roles.RoleAction{{Action: roles.ActionWorkflowCreate}},
			Resources: []string{"pool/team-a*"},
		}},
	})
}

func newTestAdmin(t *testing.T, health func(context.Context) error) (http.Handler, *roles.RoleCache) {
	t.Helper()
	cache := newTestCache(t)
	checker := auth.NewRoleChecker(roles.NewStaticStore(poolRoles()), cache, roles.DefaultRoleName, testLogger())

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCacheCollector(cache))

	router := NewAdminRouter(AdminConfig{
		Cache:    cache,
		Health:   health,
		Gatherer: registry,
		Resolver: checker,
		Pools: poolListerFunc(func(context.Context) ([]string, error) {
			return []string{"shared", "team-a-cpu", "team-a-gpu", "team-b"}, nil
		}),
		Version: "6.1.0",
	}, testLogger())
	return router, cache
}

func serve(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAdminHealthz(t *testing.T) {
	healthy, _ := newTestAdmin(t, func(context.Context) error { return nil })
	if rec := serve(healthy, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthy /healthz = %d, want 200", rec.Code)
	}

	unhealthy, _ := newTestAdmin(t, func(context.Context) error { return errors.New("ping failed") })
	if rec := serve(unhealthy, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy /healthz = %d, want 503", rec.Code)
	}
}

func TestAdminCacheStats(t *testing.T) {
	handler, cache := newTestAdmin(t, nil)
	cache.Set([]string{"osmo-user"}, nil)
	cache.Get([]string{"osmo-user"})
	cache.Get([]string{"missing"})

	rec := serve(handler, http.MethodGet, "/admin/cache/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Enabled bool    `json:"enabled"`
		Hits    int64   `json:"hits"`
		Misses  int64   `json:"misses"`
		Size    int     `json:"size"`
		HitRate float64 `json:"hit_rate"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Enabled || body.Hits != 1 || body.Misses != 1 || body.Size != 1 || body.HitRate != 50 {
		t.Errorf("stats = %+v", body)
	}
}

func TestAdminCacheClear(t *testing.T) {
	handler, cache := newTestAdmin(t, nil)
	cache.Set([]string{"a"}, nil)
	cache.Set([]string{"b"}, nil)

	if rec := serve(handler, http.MethodPost, "/admin/cache/clear"); rec.Code != http.StatusNoContent {
		t.Errorf("POST /admin/cache/clear = %d, want 204", rec.Code)
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("cache size after clear = %d, want 0", size)
	}
}

func TestAdminCacheInvalidate(t *testing.T) {
	handler, cache := newTestAdmin(t, nil)
	cache.Set([]string{"osmo-user", "osmo-default"}, nil)
	cache.Set([]string{"osmo-admin", "osmo-default"}, nil)

	rec := serve(handler, http.MethodPost, "/admin/cache/invalidate/osmo-user")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body invalidateResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Role != "osmo-user" || body.Removed != 1 {
		t.Errorf("response = %+v", body)
	}
	if size := cache.Stats().Size; size != 1 {
		t.Errorf("cache size = %d, want 1", size)
	}
}

func TestAdminPoolAccess(t *testing.T) {
	handler, _ := newTestAdmin(t, nil)

	tests := []struct {
		query string
		want  []string
	}{
		{"?roles=team-a", []string{"team-a-cpu", "team-a-gpu"}},
		{"?roles=osmo-user", []string{}},
		{"", []string{}},
	}

	for _, tt := range tests {
		rec := serve(handler, http.MethodGet, "/admin/access/pools"+tt.query)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", tt.query, rec.Code)
		}
		var body poolAccessResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !slices.Equal(body.Pools, tt.want) {
			t.Errorf("%s: pools = %v, want %v", tt.query, body.Pools, tt.want)
		}
	}
}

func TestAdminPoolAccess_NotRegisteredWithoutLister(t *testing.T) {
	router := NewAdminRouter(AdminConfig{Cache: newTestCache(t)}, testLogger())
	if rec := serve(router, http.MethodGet, "/admin/access/pools"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminMetrics(t *testing.T) {
	handler, cache := newTestAdmin(t, nil)
	cache.Get([]string{"missing"})

	rec := serve(handler, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "osmo_authz_role_cache_misses_total 1") {
		t.Errorf("metrics output missing cache misses:\n%s", body)
	}
}

func TestAdminVersion(t *testing.T) {
	handler, _ := newTestAdmin(t, nil)

	rec := serve(handler, http.MethodGet, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body versionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != "6.1.0" {
		t.Errorf("version = %q, want 6.1.0", body.Version)
	}
}
