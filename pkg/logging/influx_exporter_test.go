// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"testing"
	"time"
)

func TestNewInfluxDBExporter_ImplementsLogExporter(t *testing.T) {
	exporter := NewInfluxDBExporter("http://127.0.0.1:0", "test-token", "test-org", "test-bucket")
	defer exporter.Close()

	var _ LogExporter = exporter
}

func TestInfluxDBExporter_Export_UnreachableServerReturnsError(t *testing.T) {
	exporter := NewInfluxDBExporter("http://127.0.0.1:1", "test-token", "test-org", "test-bucket")
	defer exporter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := exporter.Export(ctx, LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "test message",
		Service:   "toolhostd",
		Attrs:     map[string]any{"key": "value"},
	})
	if err == nil {
		t.Fatal("Export() against an unreachable InfluxDB should return an error")
	}
}

func TestInfluxDBExporter_FlushAndClose_ReturnNil(t *testing.T) {
	exporter := NewInfluxDBExporter("http://127.0.0.1:0", "test-token", "test-org", "test-bucket")

	if err := exporter.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := exporter.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
