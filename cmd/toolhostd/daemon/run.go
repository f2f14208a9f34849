// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package daemon

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aleutian-ai/toolhost/internal/api"
	"github.com/aleutian-ai/toolhost/internal/config"
	"github.com/aleutian-ai/toolhost/internal/host"
	"github.com/aleutian-ai/toolhost/internal/manifest"
	"github.com/aleutian-ai/toolhost/internal/observability"
	"github.com/aleutian-ai/toolhost/pkg/logging"
)

// runServe is cobra's RunE for toolhostd's only command: load config and
// manifest, launch the Host Supervisor, and serve the caller-facing API
// until a shutdown signal arrives.
//
// Exit codes follow spec.md §6: a non-nil error here becomes main.go's
// log.Fatalf, which exits non-zero. Only config/manifest load failures
// return an error — a partially-launched Host (some tool servers failed to
// start) is logged as a warning and the daemon still serves the rest, per
// spec §4.1's partial-success semantics.
func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.Global

	var exporter logging.LogExporter
	if cfg.Observability.InfluxDB.Enabled {
		exporter = logging.NewInfluxDBExporter(
			cfg.Observability.InfluxDB.URL,
			cfg.Observability.InfluxDB.Token,
			cfg.Observability.InfluxDB.Org,
			cfg.Observability.InfluxDB.Bucket,
		)
	}

	log := logging.New(logging.Config{
		Level:    logLevelFromString(cfg.Logging.Level),
		Service:  "toolhostd",
		JSON:     cfg.Logging.JSON,
		Exporter: exporter,
	})
	defer log.Close()

	configs, err := manifest.Load(cfg.Manifest.Path)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	if cfg.Manifest.WatchForChanges {
		watcher, err := manifest.NewWatcher(cfg.Manifest.Path, log.Slog())
		if err != nil {
			log.Warn("manifest watcher failed to start", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerCleanup, err := observability.InitTracer(ctx)
	if err != nil {
		log.Warn("tracer initialization failed, continuing without tracing", "error", err)
	} else {
		defer tracerCleanup(context.Background())
	}
	observability.DefaultMetrics = observability.InitMetrics()
	if err := observability.InitOtelMeterProvider(); err != nil {
		log.Warn("otel meter provider initialization failed, otel-native metrics disabled", "error", err)
	}

	h, results := host.New(ctx, configs, cfg.Manifest.Path, log.Slog(), cfg.Server.InitTimeout)
	for _, r := range results {
		if r.Err != nil {
			log.Warn("tool server failed to launch", "server", r.Server, "error", r.Err)
		} else {
			log.Info("tool server launched", "server", r.Server)
		}
	}

	server := api.NewServer(h, log.Slog())

	log.Info("toolhostd ready", "socket", cfg.Server.SocketPath)
	if err := server.Serve(ctx, cfg.Server.SocketPath); err != nil {
		log.Error("api server exited with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGracePeriod)
	defer shutdownCancel()
	h.Shutdown(shutdownCtx)

	log.Info("toolhostd shut down cleanly")
	return nil
}

func logLevelFromString(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
