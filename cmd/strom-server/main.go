// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command strom-server runs the flow compiler, pipeline supervisor, and
// supporting services (events, stats, discovery, channel registry) as one
// process: the top-level wiring a Strom deployment boots.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eyevinn-osaas/strom-go/internal/channels"
	"github.com/eyevinn-osaas/strom-go/internal/config"
	"github.com/eyevinn-osaas/strom-go/internal/discovery"
	"github.com/eyevinn-osaas/strom-go/internal/events"
	"github.com/eyevinn-osaas/strom-go/internal/log"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/registry"
	"github.com/eyevinn-osaas/strom-go/internal/service"
	"github.com/eyevinn-osaas/strom-go/internal/stats"
	"github.com/eyevinn-osaas/strom-go/internal/store"
	"github.com/eyevinn-osaas/strom-go/internal/telemetry"
)

const statsPollInterval = 2 * time.Second

func openFlowStore(cfg config.StorageConfig) (store.FlowStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.StorageJSON:
		return store.NewJSONFlowStore(cfg.JSONPath), noop, nil
	case config.StorageBadger:
		s, err := store.OpenBadgerFlowStore(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageSQLite:
		s, err := store.OpenSQLiteFlowStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return store.NewRedisFlowStore(client, "strom:"), client.Close, nil
	case config.StoragePostgres:
		s, err := store.OpenPostgresFlowStore(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("main: unknown storage backend %q", cfg.Backend)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	blocksPath := flag.String("blocks", "data/blocks.json", "Path to the user block definitions file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "strom-server: config: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "strom-server"})
	logger := log.WithComponent("main")

	holder := config.NewHolder(cfg, loader, *configPath)
	if err := holder.Watch(); err != nil {
		logger.Warn().Err(err).Msg("config hot-reload watch failed to start")
	}
	defer holder.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        false,
		ServiceName:    "strom-server",
		ServiceVersion: "dev",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry init failed")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	flowStore, closeFlowStore, err := openFlowStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open flow store")
	}
	defer closeFlowStore()

	blockStore := store.NewJSONBlockStore(*blocksPath)
	blockRegistry := registry.New(builder.Definitions(), blockStore)
	if err := blockRegistry.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load user block definitions")
	}
	if err := blockRegistry.WatchFile(ctx, *blocksPath); err != nil {
		logger.Warn().Err(err).Msg("user block watch failed to start")
	}

	broadcaster := events.New()
	statsAgg := stats.New(broadcaster, statsPollInterval)
	threadRegistry := service.NewThreadRegistryAdapter(statsAgg)
	channelRegistry := channels.NewRegistry()

	flowSvc, err := service.New(
		flowStore,
		blockRegistry,
		builder.NewRegistry(),
		framework.NewMemoryFactory(),
		broadcaster,
		threadRegistry,
		statsAgg,
		channelRegistry,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize flow service")
	}

	if err := flowSvc.RestartPlayingFlows(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to restart previously-playing flows")
	}

	var discoverySvc *discovery.Service
	var stopDiscovery func()
	if cfg.Discovery.Enabled {
		discoverySvc = discovery.NewMDNS(cfg.Discovery.ServiceName, cfg.Discovery.StaleAfter)
		stopDiscovery = discoverySvc.Start(ctx, cfg.Discovery.SweepPeriod)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().Str("metrics_addr", cfg.MetricsAddr).Str("storage_backend", string(cfg.Storage.Backend)).Msg("strom-server started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if stopDiscovery != nil {
		stopDiscovery()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	for _, flow := range flowSvc.ListFlows() {
		if flow.State == model.StateNull {
			continue
		}
		if err := flowSvc.StopFlow(shutdownCtx, flow.ID); err != nil {
			logger.Error().Err(err).Str("flow_id", flow.ID).Msg("failed to stop flow during shutdown")
		}
	}
}
