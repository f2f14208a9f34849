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
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "toolhost-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, ".toolhost", "toolhostd.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg ToolhostConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Server.SocketPath != "/run/toolhostd/toolhostd.sock" {
		t.Errorf("Server.SocketPath = %q, want %q", cfg.Server.SocketPath, "/run/toolhostd/toolhostd.sock")
	}
	if cfg.Meta.Version != CurrentConfigVersion {
		t.Errorf("Meta.Version = %q, want %q", cfg.Meta.Version, CurrentConfigVersion)
	}
}

// TestCreateDefault_DirectoryCreation verifies nested directories are created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "toolhost-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "deep", "nested", "path", "toolhostd.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestResolvePath_ExpandsTilde verifies ~-prefixed paths expand to the home
// directory.
func TestResolvePath_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	got, err := resolvePath("~/custom/toolhostd.yaml")
	if err != nil {
		t.Fatalf("resolvePath() failed: %v", err)
	}
	want := filepath.Join(home, "custom", "toolhostd.yaml")
	if got != want {
		t.Errorf("resolvePath() = %q, want %q", got, want)
	}
}

// TestResolvePath_AbsolutePathPassesThrough verifies an absolute path is
// returned unchanged.
func TestResolvePath_AbsolutePathPassesThrough(t *testing.T) {
	got, err := resolvePath("/etc/toolhostd/custom.yaml")
	if err != nil {
		t.Fatalf("resolvePath() failed: %v", err)
	}
	if got != "/etc/toolhostd/custom.yaml" {
		t.Errorf("resolvePath() = %q, want unchanged absolute path", got)
	}
}

// TestApplyEnvOverrides_SocketPathOverride verifies TOOLHOST_SOCKET_PATH
// overrides the loaded file value.
func TestApplyEnvOverrides_SocketPathOverride(t *testing.T) {
	Global = DefaultConfig()
	t.Setenv("TOOLHOST_SOCKET_PATH", "/tmp/custom.sock")

	applyEnvOverrides()

	if Global.Server.SocketPath != "/tmp/custom.sock" {
		t.Errorf("Server.SocketPath = %q, want %q", Global.Server.SocketPath, "/tmp/custom.sock")
	}
}
