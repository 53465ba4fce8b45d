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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWithTimeout(t *testing.T) {
	slow := StoreFunc(func(ctx context.Context, _ []string) ([]*Role, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	store := WithTimeout(slow, 10*time.Millisecond)
	start := time.Now()
	_, err := store.GetRoles(context.Background(), []string{"osmo-user"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrRoleFetch) {
		t.Errorf("expected ErrRoleFetch, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded in chain, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
}

func TestWithTimeout_PassThrough(t *testing.T) {
	want := []*Role{{Name: "osmo-default"}}
	inner := StoreFunc(func(ctx context.Context, names []string) ([]*Role, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the store context")
		}
		return want, nil
	})

	got, err := WithTimeout(inner, time.Second).GetRoles(context.Background(), []string{"osmo-default"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("unexpected roles: %+v", got)
	}
}

func TestWithTimeout_NonPositive(t *testing.T) {
	inner := &StaticStore{}
	if got := WithTimeout(inner, 0); got != RoleStore(inner) {
		t.Error("expected store returned unchanged for zero timeout")
	}
}

func TestFetchError_NoDoubleWrap(t *testing.T) {
	base := errors.New("connection refused")
	once := fetchError(base)
	twice := fetchError(once)
	if once != twice {
		t.Errorf("expected fetchError to be idempotent, got %q", twice)
	}
	if !errors.Is(twice, base) {
		t.Error("expected original error in chain")
	}
}

func TestStaticStore_GetRoles(t *testing.T) {
	store := NewStaticStore([]*Role{
		{Name: "osmo-user"},
		{Name: "osmo-admin"},
		{Name: "osmo-default"},
	})

	roles, err := store.GetRoles(context.Background(), []string{"osmo-user", "missing", "osmo-default", "osmo-user"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
	if roles[0].Name != "osmo-default" || roles[1].Name != "osmo-user" {
		t.Errorf("expected roles ordered by name, got %s, %s", roles[0].Name, roles[1].Name)
	}
	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
}

func TestStaticStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticStore(nil).GetRoles(ctx, []string{"osmo-user"})
	if !errors.Is(err, ErrRoleFetch) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", err)
	}
}

func TestLoadStaticStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	doc := `
roles:
  - name: osmo-default
    policies:
      - actions:
          - {base: http, path: "/api/version", method: "*"}
  - name: osmo-user
    description: Standard user
    policies:
      - actions:
          - {base: http, path: "/api/workflow/*", method: "Get"}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write roles file: %v", err)
	}

	store, err := LoadStaticStore(path)
	if err != nil {
		t.Fatalf("LoadStaticStore() error = %v", err)
	}
	roles, err := store.GetRoles(context.Background(), []string{"osmo-user", "osmo-default"})
	if err != nil {
		t.Fatalf("GetRoles() error = %v", err)
	}
	if !Evaluate(roles, "GET", "/api/workflow/1") {
		t.Error("expected loaded roles to grant GET /api/workflow/1")
	}
	if !Evaluate(roles, "POST", "/api/version") {
		t.Error("expected loaded default role to grant /api/version")
	}

	if _, err := LoadStaticStore(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
