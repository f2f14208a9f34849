// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport launches the byte-level channel a ServerSession
// multiplexes JSON-RPC messages over: a subprocess's stdio pipes by
// default, or a websocket connection when the manifest requests one.
package transport

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aleutian-ai/toolhost/internal/manifest"
)

// Channel is the byte-level transport a ServerSession drives. Stdio is the
// only transport spec.md originally required; WebSocket and (aliased) SSE
// are additions (SPEC_FULL.md §4.8) that satisfy the same interface so the
// session's five-task model never needs to know which one it's holding.
type Channel interface {
	// ReadMessage blocks until the next complete JSON-RPC message is
	// available, or returns io.EOF when the peer is gone.
	ReadMessage() (json.RawMessage, error)
	// WriteMessage serializes and sends v as one JSON-RPC message.
	WriteMessage(v interface{}) error
	// Stderr returns the channel's diagnostic stream, or nil if the
	// transport has none (e.g. a websocket connection).
	Stderr() io.Reader
	// Close releases the channel's resources without waiting for the peer.
	Close() error
	// Kill forces immediate termination. A no-op for transports with
	// nothing to kill.
	Kill() error
	// Wait blocks until the channel has fully exited. Returns promptly for
	// transports with no underlying process.
	Wait() error
}

// Launch starts (or dials) the channel described by cfg.
func Launch(cfg manifest.ToolServerConfig) (Channel, error) {
	switch cfg.Transport.Kind {
	case manifest.TransportStdio, manifest.TransportSSE:
		return launchStdio(cfg)
	case manifest.TransportWebSocket:
		return dialWebSocket(cfg)
	default:
		return nil, fmt.Errorf("transport: unsupported transport kind %v", cfg.Transport.Kind)
	}
}
