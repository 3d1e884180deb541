// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bazel

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
	tracer = otel.Tracer("sourcekit-bsp.bazel")
	meter  = otel.Meter("sourcekit-bsp.bazel")
)

var (
	commandLatency metric.Float64Histogram
	commandTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandLatency, err = meter.Float64Histogram(
			"bsp_subprocess_duration_seconds",
			metric.WithDescription("Duration of build tool invocations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"bsp_subprocess_total",
			metric.WithDescription("Total number of build tool invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startCommandSpan(ctx context.Context, command string, cmd Command) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Bazel."+command,
		trace.WithAttributes(
			attribute.String("bazel.command", command),
			attribute.String("bazel.binary", cmd.Name),
			attribute.String("bazel.dir", cmd.Dir),
			attribute.StringSlice("bazel.args", cmd.Args),
		),
	)
}

func setCommandSpanResult(span trace.Span, exitCode int, err error) {
	span.SetAttributes(
		attribute.Int("bazel.exit_code", exitCode),
		attribute.Bool("bazel.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build tool failed")
	}
}

func recordCommandMetrics(ctx context.Context, command string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	)
	commandLatency.Record(ctx, duration.Seconds(), attrs)
	commandTotal.Add(ctx, 1, attrs)
}
