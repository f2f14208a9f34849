// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package daemon wires toolhostd's cobra command surface to the daemon's
// startup sequence: config load, manifest load, Host Supervisor launch, and
// the caller-facing HTTP API.
package daemon

import (
	"github.com/spf13/cobra"
)

var configPath string

// RootCmd builds the toolhostd root command. Exported so cmd/toolhostd's
// main package stays a thin cobra.Execute wrapper, mirroring cmd/aleutian's
// main.go/commands.go split.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolhostd",
		Short: "Tool-host multiplexer daemon",
		Long: `toolhostd spawns one subprocess per configured tool server, multiplexes
JSON-RPC requests over framed stdio, and serves the aggregated result over a
Unix domain socket.`,
		RunE: runServe,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to toolhostd.yaml (default ~/.toolhost/toolhostd.yaml)")

	return root
}
