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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// getRolesSQL fetches roles with their policies. The schema is owned by the
// OSMO service migrations; this is read-only access.
//
//	CREATE TABLE IF NOT EXISTS roles (
//	    name TEXT PRIMARY KEY,
//	    description TEXT,
//	    policies JSONB[],
//	    immutable BOOLEAN
//	);
//
// JSONB[] is converted to a JSON array so it scans as a single string.
const getRolesSQL = `SELECT name,
       COALESCE(description, '') AS description,
       COALESCE(array_to_json(policies)::text, '[]') AS policies,
       COALESCE(immutable, false) AS immutable
FROM roles
WHERE name = ANY($1)
ORDER BY name`

// DBPool is the subset of pgxpool.Pool used by PostgresStore.
// This allows for dependency injection and mocking in tests.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

var _ DBPool = (*pgxpool.Pool)(nil)

// PostgresStore resolves roles from the OSMO roles table.
type PostgresStore struct {
	pool   DBPool
	logger *slog.Logger
}

// NewPostgresStore creates a role store on top of a pgx pool.
func NewPostgresStore(pool DBPool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// GetRoles retrieves roles by their names, ordered by name.
func (s *PostgresStore) GetRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	names := uniqueNames(roleNames)
	if len(names) == 0 {
		return []*Role{}, nil
	}

	rows, err := s.pool.Query(ctx, getRolesSQL, names)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query roles",
			slog.String("error", err.Error()),
			slog.Any("roles", names),
		)
		return nil, fetchError(fmt.Errorf("failed to query roles: %w", err))
	}
	defer rows.Close()

	result := make([]*Role, 0, len(names))
	for rows.Next() {
		var role Role
		var policiesJSON string

		if err := rows.Scan(&role.Name, &role.Description, &policiesJSON, &role.Immutable); err != nil {
			s.logger.ErrorContext(ctx, "failed to scan role", slog.String("error", err.Error()))
			return nil, fetchError(fmt.Errorf("failed to scan role: %w", err))
		}

		policies, err := decodePolicies(policiesJSON)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to parse role policies",
				slog.String("role", role.Name),
				slog.String("error", err.Error()),
			)
			return nil, fetchError(fmt.Errorf("malformed policies for role %s: %w", role.Name, err))
		}
		role.Policies = policies

		result = append(result, &role)
	}

	if err := rows.Err(); err != nil {
		s.logger.ErrorContext(ctx, "error iterating roles", slog.String("error", err.Error()))
		return nil, fetchError(fmt.Errorf("error iterating roles: %w", err))
	}

	s.logger.DebugContext(ctx, "roles loaded from postgres",
		slog.Int("count", len(result)),
		slog.Any("requested", names),
	)
	return result, nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// decodePolicies parses the JSON array produced by array_to_json(policies).
func decodePolicies(policiesJSON string) ([]RolePolicy, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(policiesJSON), &raw); err != nil {
		return nil, err
	}

	policies := make([]RolePolicy, 0, len(raw))
	for _, policyRaw := range raw {
		var policy RolePolicy
		if err := json.Unmarshal(policyRaw, &policy); err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}
