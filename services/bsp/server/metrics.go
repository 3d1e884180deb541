// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("sourcekit-bsp.server")
	meter  = otel.Meter("sourcekit-bsp.server")
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"bsp_request_duration_seconds",
			metric.WithDescription("Duration of handled BSP messages"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"bsp_request_total",
			metric.WithDescription("Total number of handled BSP messages"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startDispatchSpan(ctx context.Context, sessionID, method string, request bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Dispatcher."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("bsp.method", method),
			attribute.Bool("bsp.request", request),
			attribute.String("bsp.session_id", sessionID),
		),
	)
}

func setDispatchSpanResult(span trace.Span, err error) {
	span.SetAttributes(attribute.Bool("bsp.success", err == nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
	}
}

func recordRequestMetrics(ctx context.Context, method string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}
