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
	"github.com/prometheus/client_golang/prometheus"

	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// CacheStatsSource exposes role cache statistics.
type CacheStatsSource interface {
	Stats() roles.CacheStats
}

// CacheCollector exports role cache statistics as Prometheus metrics. Values
// are read from the cache on every scrape.
type CacheCollector struct {
	source CacheStatsSource

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	size        *prometheus.Desc
	maxSize     *prometheus.Desc
}

var _ prometheus.Collector = (*CacheCollector)(nil)

// NewCacheCollector creates a collector reading from source.
func NewCacheCollector(source CacheStatsSource) *CacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("osmo_authz", "role_cache", name), help, nil, nil)
	}
	return &CacheCollector{
		source:      source,
		hits:        desc("hits_total", "Role cache lookups served from the cache."),
		misses:      desc("misses_total", "Role cache lookups that went to the role store."),
		evictions:   desc("evictions_total", "Entries evicted to stay within the maximum size."),
		expirations: desc("expirations_total", "Entries dropped after their TTL elapsed."),
		size:        desc("entries", "Entries currently cached."),
		maxSize:     desc("max_entries", "Configured maximum number of entries."),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.size
	ch <- c.maxSize
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(stats.Expirations))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.Size))
	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(stats.MaxSize))
}
