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

	"google.golang.org/grpc"
)

// NewUnaryInterceptor creates a unary server interceptor that authorizes each
// call with guard. Policies see the call as method GRPCMethod on the full
// gRPC method name.
func NewUnaryInterceptor(guard *Guard, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		authInfo, err := guard.Authorize(ctx, func() *Info { return ExtractInfo(ctx) },
			GRPCMethod, info.FullMethod)
		if err != nil {
			return nil, err
		}

		if authInfo != nil {
			ctx = ContextWithInfo(ctx, authInfo)
			logger.DebugContext(ctx, "authenticated request",
				slog.String("method", info.FullMethod),
				slog.String("user", authInfo.User),
				slog.Any("roles", authInfo.Roles),
			)
		}

		return handler(ctx, req)
	}
}

// NewStreamInterceptor creates a stream server interceptor for authorization.
//
// The interceptor follows the same logic as the unary interceptor but wraps
// the server stream to provide a modified context with auth info.
func NewStreamInterceptor(guard *Guard, logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := ss.Context()

		authInfo, err := guard.Authorize(ctx, func() *Info { return ExtractInfo(ctx) },
			GRPCMethod, info.FullMethod)
		if err != nil {
			return err
		}

		if authInfo == nil {
			return handler(srv, ss)
		}

		logger.DebugContext(ctx, "authenticated stream",
			slog.String("method", info.FullMethod),
			slog.String("user", authInfo.User),
			slog.Any("roles", authInfo.Roles),
		)
		return handler(srv, &authServerStream{
			ServerStream: ss,
			ctx:          ContextWithInfo(ctx, authInfo),
		})
	}
}

// authServerStream wraps grpc.ServerStream to provide a modified context.
type authServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context with auth info.
func (s *authServerStream) Context() context.Context {
	return s.ctx
}
