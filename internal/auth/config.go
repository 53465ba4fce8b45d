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
	"errors"
	"flag"
	"fmt"
	"time"

	"go.corp.nvidia.com/osmo-authz/utils"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid auth configuration")

// Config holds authorization configuration for the guard and interceptors.
// It is read-only after startup.
type Config struct {
	// Enabled enables authorization. When false, calls pass through without
	// identity extraction or role checks.
	Enabled bool

	// Required rejects calls that carry no user identity.
	Required bool

	// DevMode skips all checks.
	// WARNING: Never enable in production.
	DevMode bool

	// DefaultRole is appended to every caller's role list.
	DefaultRole string

	// StoreTimeout bounds each role store fetch.
	StoreTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		DefaultRole:  roles.DefaultRoleName,
		StoreTimeout: roles.DefaultStoreTimeout,
	}
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	if c.DefaultRole == "" {
		return fmt.Errorf("%w: default role must not be empty", ErrInvalidConfig)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive, got %s", ErrInvalidConfig, c.StoreTimeout)
	}
	return nil
}

// ConfigFlagPointers holds pointers to flag values for auth configuration.
type ConfigFlagPointers struct {
	enabled      *bool
	required     *bool
	devMode      *bool
	defaultRole  *string
	storeTimeout *time.Duration
}

// RegisterAuthFlags registers auth-related command-line flags.
// Call ToConfig after flag.Parse().
func RegisterAuthFlags() *ConfigFlagPointers {
	return &ConfigFlagPointers{
		enabled: flag.Bool("auth-enabled",
			utils.GetEnvBool("OSMO_AUTH_ENABLED", true),
			"Enable role-based authorization"),
		required: flag.Bool("auth-required",
			utils.GetEnvBool("OSMO_AUTH_REQUIRED", false),
			"Reject calls without a user identity"),
		devMode: flag.Bool("auth-dev-mode",
			utils.GetEnvBool("OSMO_AUTH_DEV_MODE", false),
			"Skip all authorization checks (never enable in production)"),
		defaultRole: flag.String("default-role",
			utils.GetEnv("OSMO_DEFAULT_ROLE", roles.DefaultRoleName),
			"Role appended to every caller's roles"),
		storeTimeout: flag.Duration("store-timeout",
			utils.GetEnvDuration("OSMO_STORE_TIMEOUT", roles.DefaultStoreTimeout),
			"Timeout for each role store fetch"),
	}
}

// ToConfig converts flag pointers to Config.
func (p *ConfigFlagPointers) ToConfig() Config {
	return Config{
		Enabled:      *p.enabled,
		Required:     *p.required,
		DevMode:      *p.devMode,
		DefaultRole:  *p.defaultRole,
		StoreTimeout: *p.storeTimeout,
	}
}
