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

// Command authz_sidecar serves Envoy external authorization checks backed by
// OSMO roles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"go.corp.nvidia.com/osmo-authz/internal/auth"
	"go.corp.nvidia.com/osmo-authz/service/authz_sidecar/server"
	"go.corp.nvidia.com/osmo-authz/utils"
	"go.corp.nvidia.com/osmo-authz/utils/logging"
	metrics "go.corp.nvidia.com/osmo-authz/utils/metrics-go"
	"go.corp.nvidia.com/osmo-authz/utils/postgres"
	"go.corp.nvidia.com/osmo-authz/utils/progress_check"
	"go.corp.nvidia.com/osmo-authz/utils/redis"
	"go.corp.nvidia.com/osmo-authz/utils/roles"
	"go.corp.nvidia.com/osmo-authz/utils/version"
)

const (
	serviceName      = "authz-sidecar"
	defaultGRPCPort  = 50052
	defaultAdminPort = 9090
	maxGRPCMsgSize   = 4 * 1024 * 1024 // 4MB
	shutdownTimeout  = 10 * time.Second
)

var (
	grpcPort = flag.Int("grpc-port",
		utils.GetEnvInt("OSMO_AUTHZ_GRPC_PORT", defaultGRPCPort), "gRPC server port")
	adminPort = flag.Int("admin-port",
		utils.GetEnvInt("OSMO_AUTHZ_ADMIN_PORT", defaultAdminPort), "Admin HTTP port (health, metrics, cache)")
	progressFile = flag.String("progress-file",
		utils.GetEnv("OSMO_PROGRESS_FILE", "/tmp/osmo/authz/last_progress"), "Liveness heartbeat file")
	progressInterval = flag.Duration("progress-interval",
		utils.GetEnvDuration("OSMO_PROGRESS_INTERVAL", 10*time.Second), "Heartbeat interval")

	authFlagPtrs       = auth.RegisterAuthFlags()
	cacheFlagPtrs      = roles.RegisterCacheFlags()
	roleSourceFlagPtrs = registerRoleSourceFlags()
	postgresFlagPtrs   = postgres.RegisterPostgresFlags()
	redisFlagPtrs      = redis.RegisterRedisFlags()
	metricsFlagPtrs    = metrics.RegisterMetricsFlags(serviceName)
	logFlagPtrs        = logging.RegisterFlags()
)

func main() {
	flag.Parse()

	logger := logging.InitLogger(serviceName, logFlagPtrs.ToConfig())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("authz sidecar failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	authConfig := authFlagPtrs.ToConfig()
	if err := authConfig.Validate(); err != nil {
		return err
	}
	cacheConfig := cacheFlagPtrs.ToCacheConfig()
	sourceConfig := roleSourceFlagPtrs.toConfig()
	if err := sourceConfig.Validate(); err != nil {
		return err
	}
	logger.Info("starting authz sidecar", slog.String("version", version.Current()))
	if authConfig.DevMode {
		logger.Warn("auth dev mode is enabled: every request is allowed")
	}

	roleCache, err := roles.NewRoleCache(cacheConfig, logger)
	if err != nil {
		return err
	}
	logger.Info("role cache initialized",
		slog.Bool("enabled", cacheConfig.Enabled),
		slog.Duration("ttl", cacheConfig.TTL),
		slog.Int("max_size", cacheConfig.MaxSize),
	)

	source, err := openRoleSource(ctx, sourceConfig, postgresFlagPtrs.ToPostgresConfig(), logger)
	if err != nil {
		return err
	}
	defer source.close()

	metricCreator, err := metrics.NewMetricCreator(ctx, metricsFlagPtrs.ToMetricsConfig())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricCreator.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush metrics", slog.String("error", err.Error()))
		}
	}()

	checker := auth.NewRoleChecker(
		roles.WithTimeout(source.store, authConfig.StoreTimeout),
		roleCache, authConfig.DefaultRole, logger,
	).WithMetrics(metricCreator)
	authzServer := server.NewAuthzServer(auth.NewGuard(authConfig, checker, logger), logger)
	grpcServer, healthServer := newGRPCServer(authzServer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		server.NewCacheCollector(roleCache),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	adminServer := &http.Server{
		Addr: fmt.Sprintf(":%d", *adminPort),
		Handler: server.NewAdminRouter(server.AdminConfig{
			Cache:    roleCache,
			Health:   source.ping,
			Gatherer: registry,
			Resolver: checker,
			Pools:    source.pools,
			Version:  version.Current(),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var subscriber *redis.InvalidationSubscriber
	if redisConfig := redisFlagPtrs.ToRedisConfig(); redisConfig.Enabled {
		redisClient, err := redis.NewRedisClient(ctx, redisConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redisClient.Close()
		subscriber = redis.NewInvalidationSubscriber(redisClient, redisConfig.Channel, roleCache, logger)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("authz server listening",
			slog.Int("port", *grpcPort),
			slog.String("role_source", sourceConfig.Source),
		)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("admin server listening", slog.Int("port", *adminPort))
		if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if subscriber != nil {
		g.Go(func() error {
			subscriber.Run(gctx)
			return nil
		})
	}

	if progressWriter, err := progress_check.NewProgressWriter(*progressFile); err != nil {
		logger.Warn("failed to create progress writer", slog.String("error", err.Error()))
	} else {
		g.Go(func() error {
			progressWriter.Run(gctx, *progressInterval, source.ping, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down authz sidecar")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown failed", slog.String("error", err.Error()))
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

// newGRPCServer creates the gRPC server with the authorization and health
// services registered.
func newGRPCServer(authzServer *server.AuthzServer) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(maxGRPCMsgSize),
		grpc.MaxSendMsgSize(maxGRPCMsgSize),
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	server.RegisterAuthzService(grpcServer, authzServer)
	return grpcServer, healthServer
}
