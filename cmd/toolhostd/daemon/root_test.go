// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package daemon

import (
	"testing"

	"github.com/aleutian-ai/toolhost/pkg/logging"
)

func TestRootCmd_HasConfigFlag(t *testing.T) {
	cmd := RootCmd()

	if cmd.Use != "toolhostd" {
		t.Errorf("Use = %q, want %q", cmd.Use, "toolhostd")
	}

	flag := cmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("expected a --config persistent flag")
	}
	if flag.DefValue != "" {
		t.Errorf("--config default = %q, want empty string", flag.DefValue)
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{"info", logging.LevelInfo},
		{"warn", logging.LevelWarn},
		{"error", logging.LevelError},
		{"", logging.LevelInfo},
		{"bogus", logging.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := logLevelFromString(tt.in); got != tt.want {
				t.Errorf("logLevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
