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

// Package metrics records OpenTelemetry metrics and exports them over OTLP.
package metrics

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"go.corp.nvidia.com/osmo-authz/utils"
	"go.corp.nvidia.com/osmo-authz/utils/version"
)

// MetricsConfig holds configuration for the metrics system.
type MetricsConfig struct {
	OTLPEndpoint     string
	ExportIntervalMS int
	ServiceName      string
	ServiceVersion   string
	GlobalTags       map[string]string
	Enabled          bool
}

// MetricCreator provides thread-safe metric recording capabilities.
// All methods are safe for concurrent use by multiple goroutines, and a nil
// *MetricCreator records nothing.
type MetricCreator struct {
	meterProvider      *sdkmetric.MeterProvider
	meter              metric.Meter
	counterCache       sync.Map // map[string]*instrument[metric.Int64Counter]
	upDownCounterCache sync.Map // map[string]*instrument[metric.Int64UpDownCounter]
	histogramCache     sync.Map // map[string]*instrument[metric.Float64Histogram]
	globalTags         map[string]string // Immutable after initialization
}

// instrument remembers the metadata an instrument was created with so a
// later call with the same name but a different unit or description fails
// instead of silently reusing the first definition.
type instrument[T any] struct {
	value       T
	unit        string
	description string
}

// NewMetricCreator creates a MetricCreator exporting to the configured OTLP
// collector. When metrics are disabled it returns (nil, nil) without
// connecting anywhere; the nil creator is safe to use.
func NewMetricCreator(ctx context.Context, config MetricsConfig) (*MetricCreator, error) {
	if !config.Enabled {
		return nil, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(config.ExportIntervalMS)*time.Millisecond),
	)
	return NewMetricCreatorWithReader(ctx, config, reader)
}

// NewMetricCreatorWithReader creates a MetricCreator that feeds the given
// reader, e.g. a ManualReader in tests.
func NewMetricCreatorWithReader(ctx context.Context, config MetricsConfig, reader sdkmetric.Reader) (*MetricCreator, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	meterName := config.ServiceName
	if config.ServiceVersion != "" {
		meterName = config.ServiceName + "@" + config.ServiceVersion
	}

	globalTags := make(map[string]string, len(config.GlobalTags))
	maps.Copy(globalTags, config.GlobalTags)

	return &MetricCreator{
		meterProvider: provider,
		meter:         provider.Meter(meterName),
		globalTags:    globalTags,
	}, nil
}

// RecordCounter records an integer counter metric.
func (mc *MetricCreator) RecordCounter(ctx context.Context, name string, value int64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	counter, err := getOrCreate(&mc.counterCache, name, unit, description,
		func() (metric.Int64Counter, error) {
			return mc.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(description))
		})
	if err != nil {
		return err
	}

	counter.Add(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

// RecordUpDownCounter records an integer up-down counter metric.
// Unlike Counter, this can record both positive and negative values.
func (mc *MetricCreator) RecordUpDownCounter(ctx context.Context, name string, value int64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	upDownCounter, err := getOrCreate(&mc.upDownCounterCache, name, unit, description,
		func() (metric.Int64UpDownCounter, error) {
			return mc.meter.Int64UpDownCounter(name, metric.WithUnit(unit), metric.WithDescription(description))
		})
	if err != nil {
		return err
	}

	upDownCounter.Add(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

// RecordHistogram records a floating-point histogram metric.
func (mc *MetricCreator) RecordHistogram(ctx context.Context, name string, value float64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}

	histogram, err := getOrCreate(&mc.histogramCache, name, unit, description,
		func() (metric.Float64Histogram, error) {
			return mc.meter.Float64Histogram(name, metric.WithUnit(unit), metric.WithDescription(description))
		})
	if err != nil {
		return err
	}

	histogram.Record(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

func getOrCreate[T any](cache *sync.Map, name, unit, description string, create func() (T, error)) (T, error) {
	var zero T

	// Fast path: instrument already cached
	cached, ok := cache.Load(name)
	if !ok {
		value, err := create()
		if err != nil {
			return zero, fmt.Errorf("failed to create instrument %s: %w", name, err)
		}
		// Atomic store-if-absent handles race with other goroutines
		cached, _ = cache.LoadOrStore(name, &instrument[T]{
			value:       value,
			unit:        unit,
			description: description,
		})
	}

	entry := cached.(*instrument[T])
	if entry.unit != unit || entry.description != description {
		return zero, fmt.Errorf("metric %s already exists with different metadata (unit %q, description %q)",
			name, entry.unit, entry.description)
	}
	return entry.value, nil
}

func (mc *MetricCreator) buildAttributes(callTags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(mc.globalTags)+len(callTags))

	for k, v := range mc.globalTags {
		if _, overridden := callTags[k]; overridden {
			continue
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range callTags {
		attrs = append(attrs, attribute.String(k, v))
	}

	return attrs
}

// Shutdown gracefully shuts down the meter provider, flushing any pending metrics.
func (mc *MetricCreator) Shutdown(ctx context.Context) error {
	if mc == nil || mc.meterProvider == nil {
		return nil
	}
	return mc.meterProvider.Shutdown(ctx)
}

// MetricsFlagPointers holds pointers to flag values for metrics configuration.
type MetricsFlagPointers struct {
	enable     *bool
	host       *string
	port       *int
	intervalMS *int
	component  *string
	version    *string
}

// RegisterMetricsFlags registers metrics-related command-line flags.
// Returns a MetricsFlagPointers that should be converted to MetricsConfig
// after flag.Parse() is called.
func RegisterMetricsFlags(defaultComponent string) *MetricsFlagPointers {
	return &MetricsFlagPointers{
		enable: flag.Bool("metricsOtelEnable",
			utils.GetEnvBool("METRICS_OTEL_ENABLE", false),
			"Enable OpenTelemetry metrics"),
		host: flag.String("metricsOtelCollectorHost",
			utils.GetEnv("METRICS_OTEL_COLLECTOR_HOST", "localhost"),
			"OpenTelemetry collector host"),
		port: flag.Int("metricsOtelCollectorPort",
			utils.GetEnvInt("METRICS_OTEL_COLLECTOR_PORT", 4317),
			"OpenTelemetry collector port"),
		intervalMS: flag.Int("metricsOtelCollectorIntervalInMillis",
			utils.GetEnvInt("METRICS_OTEL_COLLECTOR_INTERVAL_IN_MILLIS", 6000),
			"OpenTelemetry export interval in milliseconds"),
		component: flag.String("metricsOtelCollectorComponent",
			utils.GetEnv("METRICS_OTEL_COLLECTOR_COMPONENT", defaultComponent),
			"Service name for OpenTelemetry metrics"),
		version: flag.String("serviceVersion",
			utils.GetEnv("SERVICE_VERSION", version.Current()),
			"Service version for OpenTelemetry metrics"),
	}
}

// ToMetricsConfig converts flag pointers to MetricsConfig.
// This should be called after flag.Parse().
func (m *MetricsFlagPointers) ToMetricsConfig() MetricsConfig {
	return MetricsConfig{
		OTLPEndpoint:     fmt.Sprintf("%s:%d", *m.host, *m.port),
		ExportIntervalMS: *m.intervalMS,
		ServiceName:      *m.component,
		ServiceVersion:   *m.version,
		GlobalTags:       make(map[string]string),
		Enabled:          *m.enable,
	}
}
