// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command toolhostd is the tool-host multiplexer daemon: it spawns one
// subprocess per configured tool server, multiplexes JSON-RPC requests over
// framed stdio, and exposes the aggregated result over a Unix domain socket.
package main

import (
	"log"

	"github.com/aleutian-ai/toolhost/cmd/toolhostd/daemon"
)

func main() {
	if err := daemon.RootCmd().Execute(); err != nil {
		log.Fatalf("toolhostd: %v", err)
	}
}
