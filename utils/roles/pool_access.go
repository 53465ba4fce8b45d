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
	"context"
	"fmt"
)

const (
	// PoolResourcePrefix scopes semantic actions to a pool, e.g. "pool/team-a".
	PoolResourcePrefix = "pool/"

	// ActionWorkflowCreate is the action that decides which pools a user may
	// submit workflows to.
	ActionWorkflowCreate = "workflow:Create"
)

// PoolLister lists the pools known to the service.
type PoolLister interface {
	ListPoolNames(ctx context.Context) ([]string, error)
}

const listPoolNamesSQL = `SELECT name FROM pools ORDER BY name`

// ListPoolNames retrieves all pool names from the database.
func (s *PostgresStore) ListPoolNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, listPoolNamesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan pool name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pool names: %w", err)
	}

	return names, nil
}

// AllowedResources returns the subset of resources on which roles grant
// action, preserving input order.
//
// Roles are independent: a deny in one role does not override an allow from
// another role. Within a single policy, deny takes precedence over allow.
func AllowedResources(roles []*Role, action string, resources []string) []string {
	allowed := make([]string, 0, len(resources))
	for _, resource := range resources {
		if EvaluateAction(roles, action, resource) {
			allowed = append(allowed, resource)
		}
	}
	return allowed
}

// AllowedPools returns the pools the roles may create workflows in.
func AllowedPools(roles []*Role, poolNames []string) []string {
	allowed := make([]string, 0, len(poolNames))
	for _, poolName := range poolNames {
		if EvaluateAction(roles, ActionWorkflowCreate, PoolResourcePrefix+poolName) {
			allowed = append(allowed, poolName)
		}
	}
	return allowed
}
