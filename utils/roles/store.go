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
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultStoreTimeout bounds a single role store round trip.
const DefaultStoreTimeout = time.Second

// ErrRoleFetch wraps every failure to resolve role names into roles,
// whether the store was unreachable, timed out or returned malformed data.
var ErrRoleFetch = errors.New("failed to fetch roles")

// RoleStore resolves role names into role definitions.
//
// Names that do not exist are absent from the result; that is not an error.
// Results are ordered by name. Implementations must be safe for concurrent use.
type RoleStore interface {
	GetRoles(ctx context.Context, roleNames []string) ([]*Role, error)
}

// StoreFunc adapts a function to the RoleStore interface.
type StoreFunc func(ctx context.Context, roleNames []string) ([]*Role, error)

// GetRoles calls f(ctx, roleNames).
func (f StoreFunc) GetRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	return f(ctx, roleNames)
}

// WithTimeout bounds every GetRoles call on store by timeout. A non-positive
// timeout returns store unchanged.
func WithTimeout(store RoleStore, timeout time.Duration) RoleStore {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{store: store, timeout: timeout}
}

type timeoutStore struct {
	store   RoleStore
	timeout time.Duration
}

func (s *timeoutStore) GetRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	roles, err := s.store.GetRoles(ctx, roleNames)
	if err != nil {
		return nil, fetchError(err)
	}
	return roles, nil
}

// fetchError wraps err with ErrRoleFetch unless it already is one.
func fetchError(err error) error {
	if errors.Is(err, ErrRoleFetch) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRoleFetch, err)
}

// uniqueNames returns the sorted, de-duplicated role names for a store query.
func uniqueNames(roleNames []string) []string {
	names := slices.Clone(roleNames)
	slices.Sort(names)
	return slices.Compact(names)
}

// selectRoles picks the requested names out of an indexed role set.
func selectRoles(index map[string]*Role, roleNames []string) []*Role {
	result := make([]*Role, 0, len(roleNames))
	for _, name := range uniqueNames(roleNames) {
		if role, ok := index[name]; ok {
			result = append(result, role)
		}
	}
	return result
}
