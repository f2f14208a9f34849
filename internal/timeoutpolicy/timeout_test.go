// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package timeoutpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve_FinalDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, Resolve("fs", "read"))
}

func TestResolve_EmbeddingServerDefault(t *testing.T) {
	assert.Equal(t, 120*time.Second, Resolve("embedding", "embed"))
}

func TestResolve_GlobalDefaultOverride(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_DEFAULT", "5")
	assert.Equal(t, 5*time.Second, Resolve("fs", "read"))
}

func TestResolve_GlobalDefaultDoesNotOverrideServerDefault(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_DEFAULT", "5")
	assert.Equal(t, 120*time.Second, Resolve("embedding", "embed"))
}

func TestResolve_PerServerOverride(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_EMB", "7")
	assert.Equal(t, 7*time.Second, Resolve("emb", "embed"))
}

func TestResolve_PerToolOverrideWinsOverPerServer(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_EMB", "7")
	t.Setenv("TOOL_TIMEOUT_EMB_EMBED", "1")
	assert.Equal(t, 1*time.Second, Resolve("emb", "embed"))
}

func TestResolve_CaseInsensitiveServerName(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_EMB_EMBED", "1")
	assert.Equal(t, 1*time.Second, Resolve("Emb", "Embed"))
}

func TestResolve_MalformedOverrideIgnored(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_EMB", "not-a-number")
	assert.Equal(t, 30*time.Second, Resolve("emb", "embed"))
}
