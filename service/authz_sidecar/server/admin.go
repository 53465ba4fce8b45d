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
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.corp.nvidia.com/osmo-authz/internal/auth"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// CacheAdmin is the role cache surface the admin endpoints operate on.
type CacheAdmin interface {
	CacheStatsSource
	Clear()
	InvalidateRole(roleName string) int
}

// RoleResolver resolves caller role names, plus the default role, into roles.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, roleNames []string) ([]*roles.Role, error)
}

// AdminConfig wires the admin HTTP endpoints. Resolver and Pools are optional;
// the pool access endpoint is registered only when both are set.
type AdminConfig struct {
	Cache    CacheAdmin
	Health   func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Resolver RoleResolver
	Pools    roles.PoolLister
	Version  string
}

type adminHandler struct {
	config AdminConfig
	logger *slog.Logger
}

type cacheStatsResponse struct {
	roles.CacheStats
	HitRate float64 `json:"hit_rate"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type invalidateResponse struct {
	Role    string `json:"role"`
	Removed int    `json:"removed"`
}

type poolAccessResponse struct {
	Roles []string `json:"roles"`
	Pools []string `json:"pools"`
}

// NewAdminRouter returns the sidecar's admin HTTP router:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /version
//	GET  /admin/cache/stats
//	POST /admin/cache/clear
//	POST /admin/cache/invalidate/{role}
//	GET  /admin/access/pools?roles=a,b
func NewAdminRouter(config AdminConfig, logger *slog.Logger) *mux.Router {
	h := &adminHandler{config: config, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/version", h.version).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/cache/stats", h.cacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/clear", h.cacheClear).Methods(http.MethodPost)
	admin.HandleFunc("/cache/invalidate/{role}", h.cacheInvalidate).Methods(http.MethodPost)
	if config.Resolver != nil && config.Pools != nil {
		admin.HandleFunc("/access/pools", h.poolAccess).Methods(http.MethodGet)
	}
	return r
}

func (h *adminHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *adminHandler) version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, versionResponse{Version: h.config.Version})
}

func (h *adminHandler) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.config.Cache.Stats()
	h.writeJSON(w, r, http.StatusOK, cacheStatsResponse{CacheStats: stats, HitRate: stats.HitRate()})
}

func (h *adminHandler) cacheClear(w http.ResponseWriter, r *http.Request) {
	h.config.Cache.Clear()
	h.logger.InfoContext(r.Context(), "role cache cleared via admin endpoint")
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	role := mux.Vars(r)["role"]
	removed := h.config.Cache.InvalidateRole(role)
	h.logger.InfoContext(r.Context(), "role invalidated via admin endpoint",
		slog.String("role", role),
		slog.Int("removed", removed),
	)
	h.writeJSON(w, r, http.StatusOK, invalidateResponse{Role: role, Removed: removed})
}

func (h *adminHandler) poolAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleNames := auth.ParseRoleNames(r.URL.Query().Get("roles"))

	resolved, err := h.config.Resolver.ResolveRoles(ctx, roleNames)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to resolve roles", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	poolNames, err := h.config.Pools.ListPoolNames(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list pools", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if roleNames == nil {
		roleNames = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, poolAccessResponse{
		Roles: roleNames,
		Pools: roles.AllowedPools(resolved, poolNames),
	})
}

func (h *adminHandler) writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write response", slog.String("error", err.Error()))
	}
}
