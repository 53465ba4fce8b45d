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
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DefaultConfigMapKey is the ConfigMap data key holding the roles document.
const DefaultConfigMapKey = "roles.yaml"

// ConfigMapStore resolves roles from a roles document stored in a Kubernetes
// ConfigMap. Every GetRoles reads the ConfigMap; the RoleCache in front of it
// keeps API server traffic to one read per role set per TTL.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
	name      string
	key       string
	logger    *slog.Logger
}

// NewConfigMapStore creates a store reading namespace/name. An empty key
// selects DefaultConfigMapKey.
func NewConfigMapStore(
	client kubernetes.Interface, namespace, name, key string, logger *slog.Logger,
) *ConfigMapStore {
	if key == "" {
		key = DefaultConfigMapKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigMapStore{
		client:    client,
		namespace: namespace,
		name:      name,
		key:       key,
		logger:    logger,
	}
}

// GetRoles returns the requested roles ordered by name.
func (s *ConfigMapStore) GetRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*Role, len(all))
	for _, role := range all {
		index[role.Name] = role
	}
	return selectRoles(index, roleNames), nil
}

// Ping verifies the ConfigMap can be read and parsed.
func (s *ConfigMapStore) Ping(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

func (s *ConfigMapStore) load(ctx context.Context) ([]*Role, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read roles configmap",
			slog.String("namespace", s.namespace),
			slog.String("name", s.name),
			slog.String("error", err.Error()),
		)
		return nil, fetchError(fmt.Errorf("failed to get configmap %s/%s: %w", s.namespace, s.name, err))
	}

	data, ok := cm.Data[s.key]
	if !ok {
		return nil, fetchError(fmt.Errorf("configmap %s/%s has no key %q", s.namespace, s.name, s.key))
	}

	roles, err := ParseRoles([]byte(data))
	if err != nil {
		return nil, fetchError(err)
	}
	return roles, nil
}
