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
	"log/slog"
	"time"

	metrics "go.corp.nvidia.com/osmo-authz/utils/metrics-go"
)

// Metric names.
const (
	metricDecisions    = "authz_decisions_total"
	metricLatency      = "authz_decision_latency_ms"
	metricCacheLookups = "authz_role_cache_lookups_total"

	outcomeAllow = "allow"
	outcomeDeny  = "deny"
	outcomeError = "error"

	cacheResultHit  = "hit"
	cacheResultMiss = "miss"
)

// decisionMetrics records checker observations. A nil creator records nothing.
type decisionMetrics struct {
	creator *metrics.MetricCreator
	logger  *slog.Logger
}

func (m decisionMetrics) decision(ctx context.Context, outcome string, start time.Time) {
	tags := map[string]string{"outcome": outcome}
	if err := m.creator.RecordCounter(ctx, metricDecisions, 1, "{decision}",
		"Authorization decisions by outcome", tags); err != nil {
		m.logger.WarnContext(ctx, "failed to record metric",
			slog.String("metric", metricDecisions), slog.String("error", err.Error()))
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err := m.creator.RecordHistogram(ctx, metricLatency, elapsed, "ms",
		"Authorization decision latency", tags); err != nil {
		m.logger.WarnContext(ctx, "failed to record metric",
			slog.String("metric", metricLatency), slog.String("error", err.Error()))
	}
}

func (m decisionMetrics) cacheLookup(ctx context.Context, hit bool) {
	result := cacheResultMiss
	if hit {
		result = cacheResultHit
	}
	if err := m.creator.RecordCounter(ctx, metricCacheLookups, 1, "{lookup}",
		"Role cache lookups by result", map[string]string{"result": result}); err != nil {
		m.logger.WarnContext(ctx, "failed to record metric",
			slog.String("metric", metricCacheLookups), slog.String("error", err.Error()))
	}
}
