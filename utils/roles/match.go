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

import (
	"strings"
	"unicode/utf8"
)

// MatchMethod reports whether an action's method pattern matches the request
// method. "*" matches every method; otherwise the comparison is a
// case-insensitive equality ("Get" matches "GET").
func MatchMethod(pattern, method string) bool {
	return pattern == "*" || strings.EqualFold(pattern, method)
}

// MatchPath reports whether path matches the glob pattern.
//
// '*' matches any run of characters, including '/', so "/api/pool/team*"
// covers every path below a pool prefix and "/api/*/task" matches
// "/api/a/b/task". '?' matches exactly one character. Everything else is
// compared literally and case-sensitively. An empty pattern only matches an
// empty path.
func MatchPath(pattern, path string) bool {
	p, s := 0, 0
	starP, starS := -1, 0

	for s < len(path) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starP, starS = p, s
				p++
				continue
			case '?':
				_, size := utf8.DecodeRuneInString(path[s:])
				p++
				s += size
				continue
			default:
				if pattern[p] == path[s] {
					p++
					s++
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		// Let the last '*' swallow one more character and retry.
		_, size := utf8.DecodeRuneInString(path[starS:])
		starS += size
		p, s = starP+1, starS
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchSemanticAction checks a semantic action pattern against an action.
//   - "*" or "*:*" matches everything
//   - "workflow:*" matches all workflow actions
//   - "*:Read" matches all Read actions
func matchSemanticAction(pattern, action string) bool {
	if pattern == action || pattern == "*" || pattern == "*:*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ":*"); ok {
		return strings.HasPrefix(action, prefix+":")
	}
	if suffix, ok := strings.CutPrefix(pattern, "*:"); ok {
		return strings.HasSuffix(action, ":"+suffix)
	}
	return false
}

// matchResources reports whether a policy's resource scope covers resource.
// A policy without resources applies to every resource.
func matchResources(patterns []string, resource string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if MatchPath(pattern, resource) {
			return true
		}
	}
	return false
}
