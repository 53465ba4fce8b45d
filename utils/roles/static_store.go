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
	"os"
)

// StaticStore serves a fixed role set held in memory, loaded from a roles
// document on disk or built in tests.
type StaticStore struct {
	roles map[string]*Role
}

// NewStaticStore indexes roles by name. Later duplicates replace earlier ones.
func NewStaticStore(roles []*Role) *StaticStore {
	index := make(map[string]*Role, len(roles))
	for _, role := range roles {
		index[role.Name] = role
	}
	return &StaticStore{roles: index}
}

// LoadStaticStore reads a roles document (see ParseRoles) from path.
func LoadStaticStore(path string) (*StaticStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file %s: %w", path, err)
	}
	roles, err := ParseRoles(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles file %s: %w", path, err)
	}
	return NewStaticStore(roles), nil
}

// GetRoles returns the requested roles ordered by name.
func (s *StaticStore) GetRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchError(err)
	}
	return selectRoles(s.roles, roleNames), nil
}

// Len returns the number of roles held.
func (s *StaticStore) Len() int {
	return len(s.roles)
}
