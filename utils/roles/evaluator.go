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

import "strings"

// AccessResult describes how a decision was reached. Only Allowed is part of
// the decision; the other fields exist for logging.
type AccessResult struct {
	// Allowed indicates whether access is granted
	Allowed bool
	// RoleName is the role whose policy granted access
	RoleName string
	// PolicyIndex is the index of the granting policy within the role
	PolicyIndex int
	// MatchedPattern is the path pattern or semantic action that granted access
	MatchedPattern string
	// VetoPattern is the last negated pattern that vetoed a policy, if any
	VetoPattern string
}

// Evaluate reports whether any of the roles grants method on path.
//
// Roles form a union: the first satisfied policy of any role grants access and
// role order does not change the result. Within one policy an action whose
// path starts with "!" vetoes the whole policy when it matches, regardless of
// where the matching allow appears. A veto never reaches across policies or
// roles.
func Evaluate(roles []*Role, method, path string) bool {
	return EvaluateDetailed(roles, method, path).Allowed
}

// EvaluateDetailed is Evaluate with the granting role and pattern attached.
func EvaluateDetailed(roles []*Role, method, path string) AccessResult {
	var result AccessResult
	for _, role := range roles {
		if role == nil {
			continue
		}
		for i, policy := range role.Policies {
			allowed, pattern, vetoed := evaluatePathPolicy(policy, method, path)
			if vetoed {
				result.VetoPattern = pattern
				continue
			}
			if allowed {
				return AccessResult{
					Allowed:        true,
					RoleName:       role.Name,
					PolicyIndex:    i,
					MatchedPattern: pattern,
				}
			}
		}
	}
	return result
}

// evaluatePathPolicy scans the path-based actions of one policy in order.
// A matching allow sets allowed and keeps scanning; a matching deny ends the
// scan with the policy vetoed.
func evaluatePathPolicy(policy RolePolicy, method, path string) (allowed bool, pattern string, vetoed bool) {
	for _, action := range policy.Actions {
		if action.IsSemanticAction() || !MatchMethod(action.Method, method) {
			continue
		}
		if exclude, ok := strings.CutPrefix(action.Path, denyPrefix); ok {
			if MatchPath(exclude, path) {
				return false, action.Path, true
			}
			continue
		}
		if MatchPath(action.Path, path) && !allowed {
			allowed = true
			pattern = action.Path
		}
	}
	return allowed, pattern, false
}

// EvaluateAction reports whether any of the roles grants a semantic action
// (e.g. "workflow:Create") on resource (e.g. "pool/team-a"). It follows the
// same union and per-policy veto rules as Evaluate; a negated semantic action
// such as "!workflow:Delete" vetoes its policy. Path-based actions are ignored.
func EvaluateAction(roles []*Role, action, resource string) bool {
	return EvaluateActionDetailed(roles, action, resource).Allowed
}

// EvaluateActionDetailed is EvaluateAction with the granting role attached.
func EvaluateActionDetailed(roles []*Role, action, resource string) AccessResult {
	var result AccessResult
	for _, role := range roles {
		if role == nil {
			continue
		}
		for i, policy := range role.Policies {
			if !matchResources(policy.Resources, resource) {
				continue
			}
			allowed, pattern, vetoed := evaluateSemanticPolicy(policy, action)
			if vetoed {
				result.VetoPattern = pattern
				continue
			}
			if allowed {
				return AccessResult{
					Allowed:        true,
					RoleName:       role.Name,
					PolicyIndex:    i,
					MatchedPattern: pattern,
				}
			}
		}
	}
	return result
}

func evaluateSemanticPolicy(policy RolePolicy, action string) (allowed bool, pattern string, vetoed bool) {
	for _, ra := range policy.Actions {
		if !ra.IsSemanticAction() {
			continue
		}
		if exclude, ok := strings.CutPrefix(ra.Action, denyPrefix); ok {
			if matchSemanticAction(exclude, action) {
				return false, ra.Action, true
			}
			continue
		}
		if matchSemanticAction(ra.Action, action) && !allowed {
			allowed = true
			pattern = ra.Action
		}
	}
	return allowed, pattern, false
}
