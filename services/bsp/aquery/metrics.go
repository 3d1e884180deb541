// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aquery

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
	tracer = otel.Tracer("sourcekit-bsp.aquery")
	meter  = otel.Meter("sourcekit-bsp.aquery")
)

var (
	resolveLatency metric.Float64Histogram
	resolveTotal   metric.Int64Counter
	targetCount    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		resolveLatency, err = meter.Float64Histogram(
			"bsp_resolution_duration_seconds",
			metric.WithDescription("Duration of action graph resolution"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveTotal, err = meter.Int64Counter(
			"bsp_resolution_total",
			metric.WithDescription("Total number of action graph resolutions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		targetCount, err = meter.Int64Histogram(
			"bsp_resolved_targets",
			metric.WithDescription("Number of targets produced by a resolution"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startResolveSpan(ctx context.Context, actions int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(attribute.Int("aquery.actions", actions)),
	)
}

func setResolveSpanResult(span trace.Span, targets int, err error) {
	span.SetAttributes(
		attribute.Int("aquery.targets", targets),
		attribute.Bool("aquery.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func recordResolveMetrics(ctx context.Context, duration time.Duration, targets int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	resolveLatency.Record(ctx, duration.Seconds(), attrs)
	resolveTotal.Add(ctx, 1, attrs)
	if success {
		targetCount.Record(ctx, int64(targets))
	}
}
