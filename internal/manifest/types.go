// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest loads, validates, and persists the tool-server manifest:
// the configuration document describing which subprocess tool servers a
// host should launch. It also carries the capability types a session
// discovers during its initialize handshake.
package manifest

import "encoding/json"

// TransportKind distinguishes how a session reaches a tool server.
type TransportKind int

const (
	// TransportStdio spawns a child process and frames messages over its
	// stdin/stdout pipes. This is the only transport spec.md originally
	// required.
	TransportStdio TransportKind = iota
	// TransportSSE is presently aliased to TransportStdio (see SPEC_FULL.md
	// §4.8 / §9): no Server-Sent-Events client exists anywhere in the
	// example corpus this module was grounded on.
	TransportSSE
	// TransportWebSocket dials a websocket endpoint instead of spawning a
	// process.
	TransportWebSocket
)

func (k TransportKind) String() string {
	switch k {
	case TransportStdio:
		return "stdio"
	case TransportSSE:
		return "sse"
	case TransportWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Transport is the tagged-union transport descriptor of spec §3.
type Transport struct {
	Kind    TransportKind
	URL     string
	Headers map[string]string
}

// ToolServerConfig is one tool server's launch configuration, per spec §3.
type ToolServerConfig struct {
	Name        string            `validate:"required"`
	Enabled     bool              `validate:""`
	Transport   Transport         `validate:"-"`
	Command     []string          `validate:"required,min=1"`
	Args        []string          `validate:"-"`
	Env         map[string]string `validate:"-"`
	AutoExecute map[string]struct{}
}

// IsAutoExecute reports whether tool is in this config's auto-execute set.
func (c ToolServerConfig) IsAutoExecute(tool string) bool {
	_, ok := c.AutoExecute[tool]
	return ok
}

// ToolDescriptor is a capability entry for one callable tool, per spec §3.
type ToolDescriptor struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	ParametersSchema json.RawMessage `json:"parameters_schema,omitempty"`
}

// ResourceDescriptor is a capability entry for one readable resource.
type ResourceDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ServerCapabilities is the result of one session's initialize handshake,
// discovered exactly once and immutable thereafter, per spec §3.
type ServerCapabilities struct {
	Tools     []ToolDescriptor     `json:"tools"`
	Resources []ResourceDescriptor `json:"resources"`
}

// InitializeResult is the wire shape of the initialize response's result
// field, per spec §6.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
}
