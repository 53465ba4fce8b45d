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

// Package server implements the Envoy external authorization service and the
// admin HTTP endpoints of the authz sidecar.
package server

import (
	"context"
	"log/slog"
	"strings"

	envoy_api_v3_core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_service_auth_v3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	envoy_type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.corp.nvidia.com/osmo-authz/internal/auth"
)

// AuthzServer implements Envoy External Authorization service
type AuthzServer struct {
	envoy_service_auth_v3.UnimplementedAuthorizationServer
	guard  *auth.Guard
	logger *slog.Logger
}

// NewAuthzServer creates a new authorization server
func NewAuthzServer(guard *auth.Guard, logger *slog.Logger) *AuthzServer {
	return &AuthzServer{
		guard:  guard,
		logger: logger,
	}
}

// RegisterAuthzService registers the authorization service with gRPC server
func RegisterAuthzService(grpcServer *grpc.Server, authzServer *AuthzServer) {
	envoy_service_auth_v3.RegisterAuthorizationServer(grpcServer, authzServer)
}

// Check implements the Envoy External Authorization Check RPC.
// Decisions are carried in the response; the RPC itself only fails when the
// transport does.
func (s *AuthzServer) Check(ctx context.Context, req *envoy_service_auth_v3.CheckRequest) (*envoy_service_auth_v3.CheckResponse, error) {
	httpAttrs := req.GetAttributes().GetRequest().GetHttp()
	if httpAttrs == nil {
		s.logger.ErrorContext(ctx, "missing HTTP attributes in check request")
		return denyResponse(codes.InvalidArgument, "missing HTTP attributes"), nil
	}

	path := requestPath(httpAttrs.GetPath())
	method := httpAttrs.GetMethod()
	headers := httpAttrs.GetHeaders()

	s.logger.DebugContext(ctx, "authorization check request",
		slog.String("path", path),
		slog.String("method", method),
	)

	info, err := s.guard.Authorize(ctx, func() *auth.Info {
		return auth.ExtractInfoFromHeaders(headers)
	}, method, path)
	if err != nil {
		st := status.Convert(err)
		return denyResponse(st.Code(), st.Message()), nil
	}

	// Dev mode and disabled auth skip identity extraction.
	user := headers[auth.MetadataKeyUser]
	if info != nil {
		user = info.User
	}
	return allowResponse(user), nil
}

// requestPath drops the query string and fragment; policies match paths only.
func requestPath(rawPath string) string {
	path, _, _ := strings.Cut(rawPath, "?")
	path, _, _ = strings.Cut(path, "#")
	return path
}

// httpStatus maps a guard status code to the HTTP status Envoy returns.
func httpStatus(code codes.Code) envoy_type_v3.StatusCode {
	switch code {
	case codes.Unauthenticated:
		return envoy_type_v3.StatusCode_Unauthorized
	case codes.Internal:
		return envoy_type_v3.StatusCode_InternalServerError
	default:
		return envoy_type_v3.StatusCode_Forbidden
	}
}

// allowResponse creates a successful authorization response that forwards
// the caller identity upstream.
func allowResponse(user string) *envoy_service_auth_v3.CheckResponse {
	okResponse := &envoy_service_auth_v3.OkHttpResponse{}
	if user != "" {
		okResponse.Headers = []*envoy_api_v3_core.HeaderValueOption{
			{
				Header: &envoy_api_v3_core.HeaderValue{
					Key:   auth.MetadataKeyUser,
					Value: user,
				},
				AppendAction: envoy_api_v3_core.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
			},
		}
	}

	return &envoy_service_auth_v3.CheckResponse{
		Status: &rpcstatus.Status{
			Code: int32(codes.OK),
		},
		HttpResponse: &envoy_service_auth_v3.CheckResponse_OkResponse{
			OkResponse: okResponse,
		},
	}
}

// denyResponse creates a denial authorization response
func denyResponse(code codes.Code, message string) *envoy_service_auth_v3.CheckResponse {
	return &envoy_service_auth_v3.CheckResponse{
		Status: &rpcstatus.Status{
			Code:    int32(code),
			Message: message,
		},
		HttpResponse: &envoy_service_auth_v3.CheckResponse_DeniedResponse{
			DeniedResponse: &envoy_service_auth_v3.DeniedHttpResponse{
				Status: &envoy_type_v3.HttpStatus{
					Code: httpStatus(code),
				},
				Body: message,
				Headers: []*envoy_api_v3_core.HeaderValueOption{
					{
						Header: &envoy_api_v3_core.HeaderValue{
							Key:   "content-type",
							Value: "text/plain",
						},
					},
				},
			},
		},
	}
}
