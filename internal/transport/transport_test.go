// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-ai/toolhost/internal/manifest"
)

func TestLaunch_UnsupportedTransportKindReturnsError(t *testing.T) {
	cfg := manifest.ToolServerConfig{
		Name:      "bogus",
		Transport: manifest.Transport{Kind: manifest.TransportKind(99)},
	}
	ch, err := Launch(cfg)
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Contains(t, err.Error(), "unsupported transport kind")
}

func TestLaunch_SSERoutesThroughStdioLauncher(t *testing.T) {
	cfg := manifest.ToolServerConfig{
		Name:      "sse-server",
		Transport: manifest.Transport{Kind: manifest.TransportSSE},
		Command:   []string{"definitely-not-a-real-binary-on-path"},
	}
	_, err := Launch(cfg)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "unsupported transport kind")
}

func TestLaunch_WebSocketRequiresURL(t *testing.T) {
	cfg := manifest.ToolServerConfig{
		Name:      "ws-server",
		Transport: manifest.Transport{Kind: manifest.TransportWebSocket},
	}
	ch, err := Launch(cfg)
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Contains(t, err.Error(), "requires a url")
}
