// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

var (
	// Global is the process-wide singleton, populated by Load.
	Global ToolhostConfig
	once   sync.Once
)

// Load ensures Global is populated exactly once, reading path (or the
// default location under the user's home directory if path is empty),
// creating a default config file on first run.
func Load(path string) error {
	var err error
	once.Do(func() {
		err = loadInternal(path)
	})
	return err
}

func loadInternal(path string) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(resolved); os.IsNotExist(statErr) {
		if err := createDefault(resolved); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", resolved, err)
	}

	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("config: parse %s: %w", resolved, err)
	}

	applyEnvOverrides()

	manifestPath, err := expandHome(Global.Manifest.Path)
	if err != nil {
		return err
	}
	Global.Manifest.Path = manifestPath
	return nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return expandHome(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".toolhost", "toolhostd.yaml"), nil
}

func expandHome(path string) (string, error) {
	if len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not determine home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}

	defaultCfg := DefaultConfig()
	now := time.Now().UnixMilli()
	defaultCfg.Meta.CreatedAt = now
	defaultCfg.Meta.ModifiedAt = now
	// LoggingConfig.JSON's documented default (JSON for non-interactive
	// output, text for a tty) depends on where stderr points at first-run
	// time, so it's resolved here rather than in DefaultConfig's static
	// literal.
	defaultCfg.Logging.JSON = !isatty.IsTerminal(os.Stderr.Fd())

	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return fmt.Errorf("config: marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides layers environment variables over the loaded file, per
// spec §5's manifest-side TOOL_TIMEOUT_* convention extended to daemon
// settings an operator commonly wants to override without editing the file
// (e.g. in a container).
func applyEnvOverrides() {
	if sock := os.Getenv("TOOLHOST_SOCKET_PATH"); sock != "" {
		Global.Server.SocketPath = sock
	}
	if manifestPath := os.Getenv("TOOLHOST_MANIFEST_PATH"); manifestPath != "" {
		Global.Manifest.Path = manifestPath
	}
	if token := os.Getenv("TOOLHOST_INFLUXDB_TOKEN"); token != "" {
		Global.Observability.InfluxDB.Token = token
	}
	if level := os.Getenv("TOOLHOST_LOG_LEVEL"); level != "" {
		Global.Logging.Level = level
	}
	if raw := os.Getenv("HOST_INIT_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			Global.Server.InitTimeout = time.Duration(secs) * time.Second
		}
	}
}
