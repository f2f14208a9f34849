// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter, the idiom every instrumented package in
// this codebase follows so span/metric names stay attributable to their
// originating component.
var (
	tracer = otel.Tracer("toolhost.host")
	meter  = otel.Meter("toolhost.host")
)

const metricsNamespace = "toolhost"

// ToolMetrics holds the Prometheus metrics exposed on toolhostd's /metrics
// endpoint (SPEC_FULL.md §4.6), mirroring the orchestrator service's
// StreamingMetrics shape: one struct of pre-registered vectors, initialized
// once at startup.
type ToolMetrics struct {
	ExecuteDurationSeconds *prometheus.HistogramVec
	ExecuteTotal           *prometheus.CounterVec
	SessionSpawnsTotal     *prometheus.CounterVec
	PendingRequests        *prometheus.GaugeVec
}

// DefaultMetrics is the singleton ToolMetrics instance, set by InitMetrics.
var DefaultMetrics *ToolMetrics

// InitMetrics registers toolhostd's Prometheus metrics. Panics on duplicate
// registration, matching the orchestrator's InitMetrics contract: call it
// exactly once at startup.
func InitMetrics() *ToolMetrics {
	DefaultMetrics = &ToolMetrics{
		ExecuteDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tool_execute_duration_seconds",
				Help:      "Duration of tool execution requests in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"server", "tool", "status"},
		),
		ExecuteTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tool_execute_total",
				Help:      "Total tool execution requests by server, tool and status",
			},
			[]string{"server", "tool", "status"},
		),
		SessionSpawnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "session_spawns_total",
				Help:      "Total tool server session launch attempts by server and outcome",
			},
			[]string{"server", "outcome"},
		),
		PendingRequests: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pending_requests",
				Help:      "Number of in-flight JSON-RPC requests awaiting a response, by server",
			},
			[]string{"server"},
		),
	}
	return DefaultMetrics
}

// RecordExecute records one ExecuteTool/GetResource call's outcome and
// duration, a no-op if InitMetrics has not been called.
func (m *ToolMetrics) RecordExecute(server, tool string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ExecuteDurationSeconds.WithLabelValues(server, tool, status).Observe(duration.Seconds())
	m.ExecuteTotal.WithLabelValues(server, tool, status).Inc()
}

// RecordSessionSpawn records a session launch attempt's outcome.
func (m *ToolMetrics) RecordSessionSpawn(server string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.SessionSpawnsTotal.WithLabelValues(server, outcome).Inc()
}

// SetPendingRequests sets the pending-request gauge for server.
func (m *ToolMetrics) SetPendingRequests(server string, count int) {
	if m == nil {
		return
	}
	m.PendingRequests.WithLabelValues(server).Set(float64(count))
}

// InitOtelMeterProvider wires the otel metric SDK's instruments (recorded by
// RecordExecuteSpan) to a Prometheus collector registered against the
// default registry, so otelExecuteLatency/otelExecuteTotal surface on the
// same /metrics endpoint as the hand-rolled ToolMetrics vectors above. This
// is the concrete home for the otel Prometheus exporter dependency: the
// hand-rolled ToolMetrics cover the business metrics this package was
// written for, while this provider gives the otel-native instrumentation
// path (meter.Float64Histogram/Int64Counter) a real collection backend
// instead of silently discarding into the default no-op MeterProvider.
func InitOtelMeterProvider() error {
	exporter, err := otelprometheus.New()
	if err != nil {
		return err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return nil
}

// otel metric instruments, mirroring the LSP package's initMetrics-once
// pattern so span/metric recording degrades gracefully if meter creation
// ever fails rather than panicking mid-request.
var (
	otelExecuteLatency metric.Float64Histogram
	otelExecuteTotal   metric.Int64Counter

	otelMetricsOnce sync.Once
	otelMetricsErr  error
)

func initOtelMetrics() error {
	otelMetricsOnce.Do(func() {
		var err error
		otelExecuteLatency, err = meter.Float64Histogram(
			"toolhost_tool_execute_duration_seconds",
			metric.WithDescription("Duration of tool execution requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otelMetricsErr = err
			return
		}
		otelExecuteTotal, err = meter.Int64Counter(
			"toolhost_tool_execute_total",
			metric.WithDescription("Total tool execution requests"),
		)
		if err != nil {
			otelMetricsErr = err
			return
		}
	})
	return otelMetricsErr
}

// StartExecuteSpan opens a span around one ExecuteTool call.
func StartExecuteSpan(ctx context.Context, server, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Host.ExecuteTool",
		trace.WithAttributes(
			attribute.String("toolhost.server", server),
			attribute.String("toolhost.tool", tool),
		),
	)
}

// RecordExecuteSpan records the otel-side duration/outcome metrics for one
// completed ExecuteTool call, mirroring RecordExecute's Prometheus
// recording for OTLP-bound consumers.
func RecordExecuteSpan(ctx context.Context, server, tool string, duration time.Duration, success bool) {
	if err := initOtelMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	)
	otelExecuteLatency.Record(ctx, duration.Seconds(), attrs)
	otelExecuteTotal.Add(ctx, 1, attrs)
}
