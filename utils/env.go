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

// Package utils holds small helpers shared by the authz services: environment
// backed flag defaults and retry backoff.
package utils

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable holding an optional YAML file
// with secrets and overrides mounted by the Helm chart.
const ConfigFileEnv = "OSMO_CONFIG_FILE"

// GetEnv retrieves a string environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable or returns a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable or returns a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvDuration retrieves a duration environment variable ("30s", "5m") or
// returns a default value. A bare integer is read as seconds so existing
// OSMO_CACHE_TTL=300 deployments keep working.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetEnvOrConfig checks for value in environment variable first,
// then falls back to reading from the config file named by OSMO_CONFIG_FILE.
// Priority: envKey > config file (configKey) > defaultValue
func GetEnvOrConfig(envKey, configKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}

	configPath := os.Getenv(ConfigFileEnv)
	if configPath == "" {
		return defaultValue
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return defaultValue
	}

	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse config file",
			slog.String("path", configPath),
			slog.String("error", err.Error()))
		return defaultValue
	}

	if strValue, ok := config[configKey].(string); ok && strValue != "" {
		return strValue
	}
	return defaultValue
}
