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

// Package roles provides the role model, policy matching and evaluation,
// the role cache and the role store backends used by the authorization
// services.
package roles

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// Well-known role names.
const (
	// DefaultRoleName is appended to every caller's role list before evaluation.
	DefaultRoleName = "osmo-default"
	// AdminRoleName grants full access to all operations.
	AdminRoleName = "osmo-admin"
)

// denyPrefix marks a negated action: a path or semantic action starting with
// "!" vetoes its containing policy when it matches.
const denyPrefix = "!"

// RoleAction represents a single action within a policy.
//
// Path-based format:
//
//	{"base": "http", "path": "/api/workflow/*", "method": "Get"}
//	{"base": "http", "path": "!/api/admin/*", "method": "*"}
//
// Semantic format:
//
//	{"action": "workflow:Create"}
//
// Action takes precedence when set.
type RoleAction struct {
	Action string `json:"action,omitempty"`

	Base   string `json:"base,omitempty"`
	Path   string `json:"path,omitempty"`
	Method string `json:"method,omitempty"`
}

// IsSemanticAction returns true if this RoleAction uses the semantic format.
func (ra RoleAction) IsSemanticAction() bool {
	return ra.Action != ""
}

// IsDeny returns true if the action is a negated (veto) action.
func (ra RoleAction) IsDeny() bool {
	if ra.IsSemanticAction() {
		return strings.HasPrefix(ra.Action, denyPrefix)
	}
	return strings.HasPrefix(ra.Path, denyPrefix)
}

// RolePolicy is one allow rule: a list of actions, any of which grants the
// policy unless a negated action in the same policy also matches.
type RolePolicy struct {
	Actions []RoleAction `json:"actions"`

	// Resources scopes semantic actions, e.g. ["pool/team-a*"].
	// Empty means every resource. Ignored by path-based evaluation.
	Resources []string `json:"resources,omitempty"`
}

// Role represents a complete role with policies
type Role struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Policies    []RolePolicy `json:"policies"`
	Immutable   bool         `json:"immutable"`
}

// roleDocument is the on-disk / ConfigMap representation of a role set.
type roleDocument struct {
	Roles []*Role `json:"roles"`
}

// ParseRoles decodes a YAML or JSON document of the form
//
//	roles:
//	  - name: osmo-user
//	    policies:
//	      - actions:
//	          - {base: http, path: "/api/workflow/*", method: "*"}
//
// Role names must be non-empty and unique.
func ParseRoles(data []byte) ([]*Role, error) {
	var doc roleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse roles document: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Roles))
	for i, role := range doc.Roles {
		if role == nil || role.Name == "" {
			return nil, fmt.Errorf("role at index %d has no name", i)
		}
		if _, dup := seen[role.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", role.Name)
		}
		seen[role.Name] = struct{}{}
	}
	return doc.Roles, nil
}
