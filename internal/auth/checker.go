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

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.corp.nvidia.com/osmo-authz/utils/logging"
	metrics "go.corp.nvidia.com/osmo-authz/utils/metrics-go"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// AccessChecker decides whether a role set may perform method on path.
// An error means the decision could not be made and must be treated as
// an internal failure, never as an allow.
type AccessChecker interface {
	CheckAccess(ctx context.Context, roleNames []string, method, path string) (bool, error)
}

// RoleChecker resolves role names through the cache and role store and
// evaluates their policies.
type RoleChecker struct {
	store       roles.RoleStore
	cache       *roles.RoleCache
	defaultRole string
	logger      *slog.Logger
	metrics     decisionMetrics
}

var _ AccessChecker = (*RoleChecker)(nil)

// NewRoleChecker creates a RoleChecker. A nil cache disables caching.
func NewRoleChecker(store roles.RoleStore, cache *roles.RoleCache, defaultRole string, logger *slog.Logger) *RoleChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleChecker{
		store:       store,
		cache:       cache,
		defaultRole: defaultRole,
		logger:      logger,
		metrics:     decisionMetrics{logger: logger},
	}
}

// WithMetrics records decisions and cache lookups through creator.
func (rc *RoleChecker) WithMetrics(creator *metrics.MetricCreator) *RoleChecker {
	rc.metrics.creator = creator
	return rc
}

// ResolveRoles returns the role records for roleNames plus the default role.
// The default role is always appended, so the cache key for an empty list
// and for a list already naming the default role differ.
func (rc *RoleChecker) ResolveRoles(ctx context.Context, roleNames []string) ([]*roles.Role, error) {
	names := make([]string, 0, len(roleNames)+1)
	names = append(names, roleNames...)
	names = append(names, rc.defaultRole)

	var generation uint64
	if rc.cache != nil {
		generation = rc.cache.Generation()
		cached, found := rc.cache.Get(names)
		rc.metrics.cacheLookup(ctx, found)
		if found {
			return cached, nil
		}
	}

	resolved, err := rc.store.GetRoles(ctx, names)
	if err != nil {
		if !errors.Is(err, roles.ErrRoleFetch) {
			err = fmt.Errorf("%w: %w", roles.ErrRoleFetch, err)
		}
		return nil, err
	}

	if rc.cache != nil {
		rc.cache.SetIfGeneration(names, resolved, generation)
	}
	return resolved, nil
}

// CheckAccess reports whether the caller's roles, plus the default role,
// allow method on path.
func (rc *RoleChecker) CheckAccess(ctx context.Context, roleNames []string, method, path string) (bool, error) {
	start := time.Now()

	resolved, err := rc.ResolveRoles(ctx, roleNames)
	if err != nil {
		rc.metrics.decision(ctx, outcomeError, start)
		rc.logger.DebugContext(ctx, "failed to resolve roles",
			slog.String(logging.DecisionKey, outcomeError),
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("roles", roleNames),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	result := roles.EvaluateDetailed(resolved, method, path)
	rc.record(ctx, result, start,
		slog.String("method", method),
		slog.String("path", path),
		slog.Any("roles", roleNames),
	)
	return result.Allowed, nil
}

// CheckAction reports whether the caller's roles, plus the default role,
// allow the semantic action on resource.
func (rc *RoleChecker) CheckAction(ctx context.Context, roleNames []string, action, resource string) (bool, error) {
	start := time.Now()

	resolved, err := rc.ResolveRoles(ctx, roleNames)
	if err != nil {
		rc.metrics.decision(ctx, outcomeError, start)
		rc.logger.DebugContext(ctx, "failed to resolve roles",
			slog.String(logging.DecisionKey, outcomeError),
			slog.String("action", action),
			slog.String("resource", resource),
			slog.Any("roles", roleNames),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	result := roles.EvaluateActionDetailed(resolved, action, resource)
	rc.record(ctx, result, start,
		slog.String("action", action),
		slog.String("resource", resource),
		slog.Any("roles", roleNames),
	)
	return result.Allowed, nil
}

func (rc *RoleChecker) record(ctx context.Context, result roles.AccessResult, start time.Time, attrs ...slog.Attr) {
	outcome := outcomeDeny
	if result.Allowed {
		outcome = outcomeAllow
		attrs = append(attrs,
			slog.String("role", result.RoleName),
			slog.Int("policy", result.PolicyIndex),
			slog.String("pattern", result.MatchedPattern),
		)
	} else if result.VetoPattern != "" {
		attrs = append(attrs, slog.String("veto", result.VetoPattern))
	}
	rc.metrics.decision(ctx, outcome, start)

	attrs = append([]slog.Attr{slog.String(logging.DecisionKey, outcome)}, attrs...)
	rc.logger.LogAttrs(ctx, slog.LevelDebug, "access decision", attrs...)
}
