// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// rawServerEntry is the on-disk JSON shape of one tool server entry, shared
// by both accepted manifest forms (spec §6 / §9).
type rawServerEntry struct {
	Name        string            `json:"name,omitempty"`
	Command     []string          `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	AutoExecute []string          `json:"auto_execute,omitempty"`
	Transport   string            `json:"transport,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// objectForm is the `{mcpServers: {name: {...}}}` manifest shape.
type objectForm struct {
	McpServers map[string]rawServerEntry `json:"mcpServers"`
}

// Parse accepts either manifest shape spec §6 and §9 mandate: a bare JSON
// array of entries (each carrying its own "name"), or an object with a
// top-level "mcpServers" map whose keys become each entry's name. Both MUST
// be accepted on read.
func Parse(data []byte) ([]ToolServerConfig, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("manifest: empty document")
	}

	switch trimmed[0] {
	case '[':
		var entries []rawServerEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("manifest: parse array form: %w", err)
		}
		configs := make([]ToolServerConfig, 0, len(entries))
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if _, dup := seen[e.Name]; dup {
				return nil, fmt.Errorf("manifest: duplicate server name %q", e.Name)
			}
			seen[e.Name] = struct{}{}
			cfg, err := entryToConfig(e.Name, e)
			if err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
		return configs, nil

	case '{':
		var obj objectForm
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("manifest: parse object form: %w", err)
		}
		names := make([]string, 0, len(obj.McpServers))
		for name := range obj.McpServers {
			names = append(names, name)
		}
		sort.Strings(names)

		configs := make([]ToolServerConfig, 0, len(names))
		for _, name := range names {
			cfg, err := entryToConfig(name, obj.McpServers[name])
			if err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
		return configs, nil

	default:
		return nil, fmt.Errorf("manifest: document must begin with '[' or '{'")
	}
}

func entryToConfig(name string, e rawServerEntry) (ToolServerConfig, error) {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}

	autoExecute := make(map[string]struct{}, len(e.AutoExecute))
	for _, t := range e.AutoExecute {
		autoExecute[t] = struct{}{}
	}

	transport := Transport{Kind: TransportStdio}
	switch e.Transport {
	case "", "stdio":
		transport.Kind = TransportStdio
	case "sse":
		transport = Transport{Kind: TransportSSE, URL: e.URL, Headers: e.Headers}
	case "websocket":
		transport = Transport{Kind: TransportWebSocket, URL: e.URL, Headers: e.Headers}
	default:
		return ToolServerConfig{}, fmt.Errorf("manifest: server %q: unknown transport %q", name, e.Transport)
	}

	cfg := ToolServerConfig{
		Name:        name,
		Enabled:     enabled,
		Transport:   transport,
		Command:     e.Command,
		Args:        e.Args,
		Env:         e.Env,
		AutoExecute: autoExecute,
	}
	if err := validate.Struct(cfg); err != nil {
		return ToolServerConfig{}, fmt.Errorf("manifest: server %q: %w", name, err)
	}
	return cfg, nil
}

// Persist writes configs to path in the canonical array form, per spec §6's
// "persistence writes back in the sequence form". The write is atomic:
// temp-file-then-rename, grounded on the checkpoint-save idiom this module
// was ported from (services/trace/dag/checkpoint.go's SaveCheckpoint).
func Persist(path string, configs []ToolServerConfig) error {
	entries := make([]rawServerEntry, 0, len(configs))
	for _, c := range configs {
		entries = append(entries, configToEntry(c))
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("manifest: write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("manifest: sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("manifest: close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("manifest: rename into place: %w", err)
	}

	success = true
	return nil
}

func configToEntry(c ToolServerConfig) rawServerEntry {
	enabled := c.Enabled
	autoExecute := make([]string, 0, len(c.AutoExecute))
	for t := range c.AutoExecute {
		autoExecute = append(autoExecute, t)
	}
	sort.Strings(autoExecute)

	entry := rawServerEntry{
		Name:        c.Name,
		Command:     c.Command,
		Args:        c.Args,
		Env:         c.Env,
		Enabled:     &enabled,
		AutoExecute: autoExecute,
	}
	switch c.Transport.Kind {
	case TransportSSE:
		entry.Transport = "sse"
		entry.URL = c.Transport.URL
		entry.Headers = c.Transport.Headers
	case TransportWebSocket:
		entry.Transport = "websocket"
		entry.URL = c.Transport.URL
		entry.Headers = c.Transport.Headers
	}
	return entry
}

// Load reads and parses the manifest file at path.
func Load(path string) ([]ToolServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}
