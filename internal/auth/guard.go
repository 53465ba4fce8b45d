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

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.corp.nvidia.com/osmo-authz/utils/logging"
)

// GRPCMethod is the method policies name for gRPC calls, whose path is the
// full method name (e.g. /osmo.Router/Register).
const GRPCMethod = "GRPC"

// Caller-visible messages. Internal failures never carry store details.
const (
	msgUnauthenticated  = "authentication required"
	msgPermissionDenied = "insufficient permissions"
	msgInternal         = "authorization check failed"
)

// IdentityFunc reads the caller identity from transport metadata.
// It may return nil when no identity is present.
type IdentityFunc func() *Info

// Guard applies the authorization steps shared by every transport:
//
//  1. DevMode skips everything.
//  2. Disabled skips everything, before any metadata is read.
//  3. The identity is extracted.
//  4. Required rejects calls without a user before any store access.
//  5. The checker, if any, decides. Errors fail closed.
type Guard struct {
	config  Config
	checker AccessChecker
	logger  *slog.Logger
}

// NewGuard creates a Guard. A nil checker performs authentication only.
func NewGuard(config Config, checker AccessChecker, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{config: config, checker: checker, logger: logger}
}

// Authorize runs the authorization steps for one call and returns the
// identity to attach to the downstream context, or nil when checks were
// skipped or no identity was presented. Errors are gRPC status errors with
// codes Unauthenticated, PermissionDenied or Internal.
func (g *Guard) Authorize(ctx context.Context, identify IdentityFunc, method, path string) (*Info, error) {
	if g.config.DevMode || !g.config.Enabled {
		return nil, nil
	}

	info := identify()
	if g.config.Required && (info == nil || info.User == "") {
		g.logger.WarnContext(ctx, "unauthenticated request rejected",
			slog.String("method", method),
			slog.String("path", path),
		)
		return nil, status.Error(codes.Unauthenticated, msgUnauthenticated)
	}

	if g.checker == nil {
		return info, nil
	}

	var user string
	var roleNames []string
	if info != nil {
		user = info.User
		roleNames = info.Roles
	}

	allowed, err := g.checker.CheckAccess(ctx, roleNames, method, path)
	if err != nil {
		g.logger.ErrorContext(ctx, "role check failed",
			slog.String(logging.UserKey, user),
			slog.String(logging.DecisionKey, outcomeError),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, status.Error(codes.Internal, msgInternal)
	}
	if !allowed {
		g.logger.InfoContext(ctx, "access denied by role check",
			slog.String(logging.UserKey, user),
			slog.String(logging.DecisionKey, outcomeDeny),
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("roles", roleNames),
		)
		return nil, status.Error(codes.PermissionDenied, msgPermissionDenied)
	}

	return info, nil
}
