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

// Package auth enforces role-based authorization on inbound calls. Identity
// arrives in headers set by Envoy after JWT validation; this package trusts
// those headers as given and decides access from the caller's roles.
package auth

import (
	"context"
	"slices"
	"strings"

	"google.golang.org/grpc/metadata"

	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// Metadata keys for authentication headers.
// Keys must be lowercase for gRPC metadata.
const (
	// MetadataKeyUser contains the user identity extracted from JWT (e.g., email).
	MetadataKeyUser = "x-osmo-user"
	// MetadataKeyRoles contains comma-separated role names from JWT.
	MetadataKeyRoles = "x-osmo-roles"
	// MetadataKeyAuth contains the raw JWT token (for forwarding if needed).
	MetadataKeyAuth = "x-osmo-auth"
)

// Info contains extracted authentication information.
type Info struct {
	// User is the authenticated user identity (e.g., john.doe@nvidia.com).
	User string
	// Roles are the role names asserted for the user, without the default role.
	Roles []string
}

// HasRole checks if the user has a specific role.
func (i *Info) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// IsAdmin checks if the user has admin privileges.
func (i *Info) IsAdmin() bool {
	return i.HasRole(roles.AdminRoleName)
}

type contextKey string

const infoKey contextKey = "authInfo"

// InfoFromContext retrieves Info from the context.
// Returns nil and false if no auth info is present.
func InfoFromContext(ctx context.Context) (*Info, bool) {
	info, ok := ctx.Value(infoKey).(*Info)
	return info, ok
}

// ContextWithInfo adds Info to the context.
func ContextWithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// ExtractInfo extracts authentication information from gRPC metadata.
// Returns nil if no metadata is present.
func ExtractInfo(ctx context.Context) *Info {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	info := &Info{}
	if users := md.Get(MetadataKeyUser); len(users) > 0 {
		info.User = strings.TrimSpace(users[0])
	}
	if roleHeader := md.Get(MetadataKeyRoles); len(roleHeader) > 0 {
		info.Roles = ParseRoleNames(roleHeader[0])
	}
	return info
}

// ExtractInfoFromHeaders builds Info from HTTP headers forwarded by the proxy.
// Header names are expected in lowercase, as Envoy delivers them.
func ExtractInfoFromHeaders(headers map[string]string) *Info {
	return &Info{
		User:  strings.TrimSpace(headers[MetadataKeyUser]),
		Roles: ParseRoleNames(headers[MetadataKeyRoles]),
	}
}

// ParseRoleNames splits a comma-separated roles header, trimming whitespace
// and dropping empty elements: "a, ,b," yields [a b].
func ParseRoleNames(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
