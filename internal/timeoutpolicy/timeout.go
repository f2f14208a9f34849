// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timeoutpolicy resolves the per-tool-call timeout a Host Supervisor
// applies to execute_tool/get_resource, following the five-step environment
// override chain of spec §4.5 (ported from original_source/mcp/src/host/mod.rs's
// get_tool_timeout).
package timeoutpolicy

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultTimeout is the final fallback when no environment override and no
// per-server hard-coded default applies.
const defaultTimeout = 30 * time.Second

// serverDefaults holds the per-server hard-coded defaults of spec §4.5 step 3.
// "embedding" servers get a longer default because embedding calls routinely
// batch large inputs.
var serverDefaults = map[string]time.Duration{
	"embedding": 120 * time.Second,
}

// Resolve returns the timeout to apply to a call against (serverName,
// toolName), following this resolution order (first match wins):
//
//  1. TOOL_TIMEOUT_<SERVER>_<TOOL>
//  2. TOOL_TIMEOUT_<SERVER>
//  3. per-server hard-coded default
//  4. TOOL_TIMEOUT_DEFAULT
//  5. 30s
func Resolve(serverName, toolName string) time.Duration {
	server := envKeyPart(serverName)
	tool := envKeyPart(toolName)

	if d, ok := envSeconds("TOOL_TIMEOUT_" + server + "_" + tool); ok {
		return d
	}
	if d, ok := envSeconds("TOOL_TIMEOUT_" + server); ok {
		return d
	}
	if d, ok := serverDefaults[strings.ToLower(serverName)]; ok {
		return d
	}
	if d, ok := envSeconds("TOOL_TIMEOUT_DEFAULT"); ok {
		return d
	}
	return defaultTimeout
}

// envKeyPart upper-cases a server/tool name for embedding in an environment
// variable name.
func envKeyPart(s string) string {
	return strings.ToUpper(s)
}

func envSeconds(key string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
