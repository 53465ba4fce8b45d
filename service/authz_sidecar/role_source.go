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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"go.corp.nvidia.com/osmo-authz/utils"
	"go.corp.nvidia.com/osmo-authz/utils/postgres"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
)

// Role sources.
const (
	roleSourcePostgres  = "postgres"
	roleSourceConfigMap = "configmap"
	roleSourceFile      = "file"
)

type roleSourceConfig struct {
	Source             string
	ConfigMapNamespace string
	ConfigMapName      string
	ConfigMapKey       string
	File               string
}

func (c roleSourceConfig) Validate() error {
	switch c.Source {
	case roleSourcePostgres:
	case roleSourceConfigMap:
		if c.ConfigMapNamespace == "" || c.ConfigMapName == "" {
			return fmt.Errorf("role source %q needs a configmap namespace and name", c.Source)
		}
	case roleSourceFile:
		if c.File == "" {
			return fmt.Errorf("role source %q needs a roles file", c.Source)
		}
	default:
		return fmt.Errorf("unknown role source %q (want %s, %s or %s)",
			c.Source, roleSourcePostgres, roleSourceConfigMap, roleSourceFile)
	}
	return nil
}

type roleSourceFlagPointers struct {
	source             *string
	configMapNamespace *string
	configMapName      *string
	configMapKey       *string
	file               *string
}

func registerRoleSourceFlags() *roleSourceFlagPointers {
	return &roleSourceFlagPointers{
		source: flag.String("role-source",
			utils.GetEnv("OSMO_ROLE_SOURCE", roleSourcePostgres),
			"Where roles are read from: postgres, configmap or file"),
		configMapNamespace: flag.String("roles-configmap-namespace",
			utils.GetEnv("OSMO_ROLES_CONFIGMAP_NAMESPACE", "osmo"),
			"Namespace of the roles ConfigMap"),
		configMapName: flag.String("roles-configmap-name",
			utils.GetEnv("OSMO_ROLES_CONFIGMAP_NAME", "osmo-roles"),
			"Name of the roles ConfigMap"),
		configMapKey: flag.String("roles-configmap-key",
			utils.GetEnv("OSMO_ROLES_CONFIGMAP_KEY", roles.DefaultConfigMapKey),
			"Data key of the roles document in the ConfigMap"),
		file: flag.String("roles-file",
			utils.GetEnv("OSMO_ROLES_FILE", ""),
			"Path of a roles YAML document"),
	}
}

func (p *roleSourceFlagPointers) toConfig() roleSourceConfig {
	return roleSourceConfig{
		Source:             *p.source,
		ConfigMapNamespace: *p.configMapNamespace,
		ConfigMapName:      *p.configMapName,
		ConfigMapKey:       *p.configMapKey,
		File:               *p.file,
	}
}

// roleSource is an opened role store with its health probe and teardown.
// pools is nil unless the source also knows the pool list.
type roleSource struct {
	store roles.RoleStore
	ping  func(context.Context) error
	pools roles.PoolLister
	close func()
}

func openRoleSource(
	ctx context.Context,
	config roleSourceConfig,
	postgresConfig postgres.PostgresConfig,
	logger *slog.Logger,
) (*roleSource, error) {
	switch config.Source {
	case roleSourcePostgres:
		client, err := postgres.NewPostgresClient(ctx, postgresConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres client: %w", err)
		}
		store := roles.NewPostgresStore(client.Pool(), logger)
		return &roleSource{store: store, ping: store.Ping, pools: store, close: client.Close}, nil

	case roleSourceConfigMap:
		client, err := createKubernetesClient()
		if err != nil {
			return nil, err
		}
		store := roles.NewConfigMapStore(client,
			config.ConfigMapNamespace, config.ConfigMapName, config.ConfigMapKey, logger)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to read roles configmap: %w", err)
		}
		return &roleSource{store: store, ping: store.Ping, close: func() {}}, nil

	case roleSourceFile:
		store, err := roles.LoadStaticStore(config.File)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded roles file",
			slog.String("path", config.File),
			slog.Int("roles", store.Len()),
		)
		return &roleSource{
			store: store,
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown role source %q", config.Source)
}

// createKubernetesClient creates a Kubernetes clientset using in-cluster
// config, falling back to the default kubeconfig.
func createKubernetesClient() (*kubernetes.Clientset, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		)
		config, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}
