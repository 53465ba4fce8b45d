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

// Package postgres owns the pgx connection pool used by the role store.
package postgres

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.corp.nvidia.com/osmo-authz/utils"
)

// connectTimeout bounds the initial ping performed by NewPostgresClient.
const connectTimeout = 5 * time.Second

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	SSLMode         string
}

// ConnectionURL renders the pgx connection URL. User and password are
// escaped so vault-generated secrets containing '@', ':' or '%' parse.
func (c PostgresConfig) ConnectionURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// CreateClient connects using this configuration with a background context.
func (c PostgresConfig) CreateClient(logger *slog.Logger) (*PostgresClient, error) {
	client, err := NewPostgresClient(context.Background(), c, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("postgres client initialized",
		slog.String("host", c.Host),
		slog.Int("port", c.Port),
		slog.String("database", c.Database),
	)
	return client, nil
}

// PostgresFlagPointers holds pointers to flag values for postgres configuration
type PostgresFlagPointers struct {
	host               *string
	port               *int
	user               *string
	password           *string
	database           *string
	maxConns           *int
	minConns           *int
	maxConnLifetimeMin *int
	sslMode            *string
}

// RegisterPostgresFlags registers postgres-related command-line flags.
// The password may also come from the OSMO_CONFIG_FILE secret file under
// the "postgres_password" key.
func RegisterPostgresFlags() *PostgresFlagPointers {
	return &PostgresFlagPointers{
		host: flag.String("postgres-host",
			utils.GetEnv("OSMO_POSTGRES_HOST", "localhost"),
			"PostgreSQL host"),
		port: flag.Int("postgres-port",
			utils.GetEnvInt("OSMO_POSTGRES_PORT", 5432),
			"PostgreSQL port"),
		user: flag.String("postgres-user",
			utils.GetEnv("OSMO_POSTGRES_USER", "postgres"),
			"PostgreSQL user"),
		password: flag.String("postgres-password",
			utils.GetEnvOrConfig("OSMO_POSTGRES_PASSWORD", "postgres_password", ""),
			"PostgreSQL password"),
		database: flag.String("postgres-database",
			utils.GetEnv("OSMO_POSTGRES_DATABASE_NAME", "osmo_db"),
			"PostgreSQL database name"),
		maxConns: flag.Int("postgres-max-conns",
			utils.GetEnvInt("OSMO_POSTGRES_MAX_CONNS", 10),
			"Maximum connections in the pool"),
		minConns: flag.Int("postgres-min-conns",
			utils.GetEnvInt("OSMO_POSTGRES_MIN_CONNS", 2),
			"Minimum idle connections in the pool"),
		maxConnLifetimeMin: flag.Int("postgres-max-conn-lifetime",
			utils.GetEnvInt("OSMO_POSTGRES_MAX_CONN_LIFETIME_MIN", 5),
			"Maximum connection lifetime in minutes"),
		sslMode: flag.String("postgres-sslmode",
			utils.GetEnv("OSMO_POSTGRES_SSLMODE", "disable"),
			"PostgreSQL sslmode (disable, require, verify-full)"),
	}
}

// ToPostgresConfig converts flag pointers to PostgresConfig.
// This should be called after flag.Parse().
func (p *PostgresFlagPointers) ToPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            *p.host,
		Port:            *p.port,
		Database:        *p.database,
		User:            *p.user,
		Password:        *p.password,
		MaxConns:        int32(*p.maxConns),
		MinConns:        int32(*p.minConns),
		MaxConnLifetime: time.Duration(*p.maxConnLifetimeMin) * time.Minute,
		SSLMode:         *p.sslMode,
	}
}

// PostgresClient handles PostgreSQL database operations
type PostgresClient struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresClient creates a new PostgreSQL client with connection pooling
// and verifies the database answers a ping.
func NewPostgresClient(ctx context.Context, config PostgresConfig, logger *slog.Logger) (*PostgresClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("postgres client connected successfully")

	return &PostgresClient{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (c *PostgresClient) Close() {
	c.logger.Info("closing postgres client")
	c.pool.Close()
}

// Pool returns the underlying pgxpool.Pool for direct database access
func (c *PostgresClient) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping verifies the database connection is still alive
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}
