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

package roles

import "testing"

func TestMatchMethod(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		method   string
		expected bool
	}{
		{"wildcard matches GET", "*", "GET", true},
		{"wildcard matches empty", "*", "", true},
		{"wildcard matches GRPC", "*", "GRPC", true},
		{"exact match", "GET", "GET", true},
		{"case-insensitive match", "Get", "GET", true},
		{"lowercase pattern", "post", "POST", true},
		{"different method", "GET", "POST", false},
		{"no prefix matching", "GE", "GET", false},
		{"no substring matching", "GETS", "GET", false},
		{"empty pattern only matches empty", "", "GET", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchMethod(tt.pattern, tt.method); got != tt.expected {
				t.Errorf("MatchMethod(%q, %q) = %v, want %v", tt.pattern, tt.method, got, tt.expected)
			}
		})
	}
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		expected bool
	}{
		// Wildcard
		{"star matches any path", "*", "/api/workflow/123", true},
		{"star matches empty path", "*", "", true},
		{"star matches root", "*", "/", true},

		// Literal
		{"exact literal", "/api/foo", "/api/foo", true},
		{"literal is not a prefix match", "/api/foo", "/api/foobar", false},
		{"literal is not a suffix match", "/api/foobar", "/api/foo", false},
		{"paths are case-sensitive", "/api/Foo", "/api/foo", false},
		{"empty pattern matches empty path", "", "", true},
		{"empty pattern does not match path", "", "/api", false},

		// Trailing star crosses segments
		{"trailing star single level", "/api/*", "/api/anything", true},
		{"trailing star deep", "/api/*", "/api/anything/deep", true},
		{"trailing star matches empty remainder", "/api/*", "/api/", true},
		{"trailing star requires prefix", "/api/*", "/apix", false},
		{"pool prefix subtree", "/api/pool/team*", "/api/pool/team-a/workflow/1", true},
		{"pool prefix mismatch", "/api/pool/team*", "/api/pool/other", false},

		// Mid-pattern star crosses segment boundaries
		{"mid star single segment", "/api/*/task", "/api/a/task", true},
		{"mid star multiple segments", "/api/*/task", "/api/a/b/task", true},
		{"mid star requires suffix", "/api/*/task", "/api/a/b/tasks", false},
		{"multiple stars", "/api/*/workflow/*/logs", "/api/pool/x/workflow/42/logs", true},
		{"leading star", "*/logs", "/api/workflow/1/logs", true},
		{"backtracking across repeated suffix", "*ab", "aabab", true},

		// Question mark
		{"question mark single char", "/api/v?", "/api/v1", true},
		{"question mark needs exactly one", "/api/v?", "/api/v", false},
		{"question mark not two", "/api/v?", "/api/v12", false},
		{"question mark matches slash", "/api?v1", "/api/v1", true},
		{"question mark matches multibyte rune", "/caf?", "/café", true},

		// gRPC method names
		{"grpc full method", "/osmo.Service/*", "/osmo.Service/Get", true},
		{"grpc other service", "/osmo.Service/*", "/other.Service/Get", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPath(tt.pattern, tt.path); got != tt.expected {
				t.Errorf("MatchPath(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.expected)
			}
		})
	}
}

func TestMatchSemanticAction(t *testing.T) {
	tests := []struct {
		pattern  string
		action   string
		expected bool
	}{
		{"workflow:Create", "workflow:Create", true},
		{"workflow:Create", "workflow:Delete", false},
		{"*", "pool:List", true},
		{"*:*", "pool:List", true},
		{"workflow:*", "workflow:Cancel", true},
		{"workflow:*", "pool:List", false},
		{"workflow:*", "workflowx:Cancel", false},
		{"*:Read", "bucket:Read", true},
		{"*:Read", "bucket:Write", false},
		{"", "pool:List", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.action, func(t *testing.T) {
			if got := matchSemanticAction(tt.pattern, tt.action); got != tt.expected {
				t.Errorf("matchSemanticAction(%q, %q) = %v, want %v", tt.pattern, tt.action, got, tt.expected)
			}
		})
	}
}

func TestMatchResources(t *testing.T) {
	if !matchResources(nil, "pool/anything") {
		t.Error("expected empty resource scope to match any resource")
	}
	if !matchResources([]string{"pool/other", "pool/team-*"}, "pool/team-a") {
		t.Error("expected second pattern to match")
	}
	if matchResources([]string{"pool/team-*"}, "pool/prod") {
		t.Error("expected pool/prod to be outside pool/team-*")
	}
}
