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
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxDBExporter is an enterprise LogExporter that writes log entries as
// points to an InfluxDB bucket, grounded on services/data_fetcher's use of
// the same client for time-series writes. Logs land in the "toolhostd_logs"
// measurement with service/level as tags and the message/attrs as fields.
type InfluxDBExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxDBExporter dials InfluxDB at url and binds to org/bucket. It does
// not block on connectivity; a down InfluxDB surfaces as Export errors,
// which Logger.log already treats as silently-dropped.
func NewInfluxDBExporter(url, token, org, bucket string) *InfluxDBExporter {
	client := influxdb2.NewClient(url, token)
	return &InfluxDBExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// Export writes entry as a single InfluxDB point.
func (e *InfluxDBExporter) Export(ctx context.Context, entry LogEntry) error {
	fields := make(map[string]interface{}, len(entry.Attrs)+1)
	fields["message"] = entry.Message
	for k, v := range entry.Attrs {
		fields[fmt.Sprintf("attr_%s", k)] = fmt.Sprintf("%v", v)
	}

	point := influxdb2.NewPoint(
		"toolhostd_logs",
		map[string]string{
			"service": entry.Service,
			"level":   entry.Level.String(),
		},
		fields,
		entry.Timestamp,
	)
	return e.writeAPI.WritePoint(ctx, point)
}

// Flush is a no-op: WriteAPIBlocking writes synchronously on Export.
func (e *InfluxDBExporter) Flush(ctx context.Context) error {
	return nil
}

// Close releases the underlying InfluxDB client's HTTP connections.
func (e *InfluxDBExporter) Close() error {
	e.client.Close()
	return nil
}

var _ LogExporter = (*InfluxDBExporter)(nil)
