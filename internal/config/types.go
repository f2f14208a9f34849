// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides the daemon-level configuration for toolhostd:
// where its socket listens, where the tool-server manifest lives, and how
// its observability stack is wired. This is distinct from
// internal/manifest, which describes the tool servers themselves.
package config

import "time"

// CurrentConfigVersion is the daemon config schema version.
const CurrentConfigVersion = "1.0.0"

// ToolhostConfig is the root daemon configuration structure.
type ToolhostConfig struct {
	// Meta carries versioning metadata for migration support.
	Meta ConfigMeta `yaml:"meta"`

	// Server configures the caller-facing HTTP API.
	Server ServerConfig `yaml:"server"`

	// Manifest locates and configures the tool-server manifest.
	Manifest ManifestConfig `yaml:"manifest"`

	// Observability configures tracing and metrics export.
	Observability ObservabilityConfig `yaml:"observability"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures toolhostd's caller-facing API.
type ServerConfig struct {
	// SocketPath is the Unix domain socket the API listens on.
	// Default: "/run/toolhostd/toolhostd.sock"
	SocketPath string `yaml:"socket_path"`

	// InitTimeout bounds how long the Host Supervisor waits for every
	// session's initialize handshake during startup.
	// Default: 30s
	InitTimeout time.Duration `yaml:"init_timeout"`

	// ShutdownGracePeriod bounds how long graceful shutdown waits before
	// the daemon exits regardless of in-flight shutdown sequences.
	// Default: 10s
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
}

// ManifestConfig locates the tool-server manifest and whether edits to it
// are watched.
type ManifestConfig struct {
	// Path is the manifest file's location.
	// Default: "~/.toolhost/manifest.json"
	Path string `yaml:"path"`

	// WatchForChanges enables the fsnotify-based watcher that logs manifest
	// edits. It does not hot-reload sessions (spec §9's Open Question
	// resolves hot reload as out of scope); it only surfaces drift.
	// Default: true
	WatchForChanges bool `yaml:"watch_for_changes"`
}

// ObservabilityConfig configures tracing/metrics export.
type ObservabilityConfig struct {
	// MetricsAddr is a TCP address for Prometheus metrics. toolhostd does
	// not read it: /metrics is served by the API router on the Unix socket.
	// Default: "127.0.0.1:9090"
	MetricsAddr string `yaml:"metrics_addr"`

	// InfluxDB configures the optional enterprise log export backend.
	InfluxDB InfluxDBConfig `yaml:"influxdb,omitempty"`
}

// InfluxDBConfig configures exporting log entries to an InfluxDB
// instance, an enterprise-deployment addition beyond the Prometheus
// scrape target (SPEC_FULL.md §11).
type InfluxDBConfig struct {
	// Enabled toggles the InfluxDB exporter.
	Enabled bool `yaml:"enabled"`

	// URL is the InfluxDB server address, e.g. "http://localhost:8086".
	URL string `yaml:"url,omitempty"`

	// Org is the InfluxDB organization name.
	Org string `yaml:"org,omitempty"`

	// Bucket is the InfluxDB bucket log entries are written to.
	Bucket string `yaml:"bucket,omitempty"`

	// Token is the InfluxDB API token. Read from the
	// TOOLHOST_INFLUXDB_TOKEN environment variable if empty, never stored
	// in the config file itself.
	Token string `yaml:"-"`

	// FlushInterval is not read: the InfluxDB exporter writes each entry
	// with a blocking write, so there are no buffered points to flush.
	// Default: 10s
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LoggingConfig configures the structured logger every component uses.
type LoggingConfig struct {
	// Level is the minimum level logged: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// JSON selects slog.JSONHandler over slog.TextHandler.
	// Default: true for non-interactive (piped) output, false for a tty.
	JSON bool `yaml:"json"`
}

// ConfigMeta tracks when the daemon config was created or modified.
type ConfigMeta struct {
	Version    string `yaml:"version"`
	CreatedAt  int64  `yaml:"created_at"`
	ModifiedAt int64  `yaml:"modified_at"`
	ModifiedBy string `yaml:"modified_by"`
}

// DefaultConfig returns toolhostd's default configuration, used when no
// config file exists on first run.
func DefaultConfig() ToolhostConfig {
	return ToolhostConfig{
		Meta: ConfigMeta{Version: CurrentConfigVersion, ModifiedBy: "toolhostd"},
		Server: ServerConfig{
			SocketPath:          "/run/toolhostd/toolhostd.sock",
			InitTimeout:         30 * time.Second,
			ShutdownGracePeriod: 10 * time.Second,
		},
		Manifest: ManifestConfig{
			Path:            "~/.toolhost/manifest.json",
			WatchForChanges: true,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9090",
			InfluxDB: InfluxDBConfig{
				Enabled:       false,
				FlushInterval: 10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}
