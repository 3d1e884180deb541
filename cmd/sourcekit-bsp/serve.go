// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/server"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/telemetry"
)

const shutdownTimeout = 5 * time.Second

// runServe runs the dispatcher on stdin/stdout, plus the /metrics
// listener when configured, until the session ends.
func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	sessionID := uuid.NewString()
	logger := a.logger.Slog().With(slog.String("session_id", sessionID))

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.SessionID = sessionID
	// OTEL_* environment exporters apply when settings leave them off.
	if ts := a.settings.Telemetry; ts.TraceExporter != telemetry.ExporterNone {
		tcfg.TraceExporter = ts.TraceExporter
		tcfg.OTLPEndpoint = ts.OTLPEndpoint
	}
	if ts := a.settings.Telemetry; ts.MetricExporter != telemetry.ExporterNone {
		tcfg.MetricExporter = ts.MetricExporter
	}
	tcfg.OTLPInsecure = a.settings.Telemetry.OTLPInsecure
	tcfg.OutputPath = config.ExpandHome(a.settings.Telemetry.OutputPath)

	shutdownTelemetry, err := telemetry.Init(parent, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("serving build server protocol",
		slog.String("version", version),
		slog.String("trace_exporter", tcfg.TraceExporter),
		slog.String("metric_exporter", tcfg.MetricExporter),
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	d := server.NewDispatcher(jsonrpc.NewConn(a.stdin, a.stdout), server.Options{
		Runner:    a.runner,
		Logger:    a.logger.Slog(),
		SessionID: sessionID,
	})

	g.Go(func() error {
		defer cancel()
		return runDispatcher(gctx, d)
	})

	addr := a.settings.Telemetry.MetricsAddr
	if handler := telemetry.MetricsHandler(); handler != nil && addr != "" && tcfg.MetricExporter == telemetry.ExporterPrometheus {
		g.Go(func() error {
			serveMetrics(gctx, addr, handler, logger)
			return nil
		})
	}

	err = g.Wait()
	if err != nil && errors.Is(err, context.Canceled) && parent.Err() != nil {
		logger.Info("interrupted, exiting")
		return nil
	}
	return err
}

// runDispatcher runs d until it returns or ctx is cancelled. Reads from
// stdin cannot be interrupted, so on cancellation the read is abandoned.
func runDispatcher(ctx context.Context, d *server.Dispatcher) error {
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- &panicError{value: r, stack: debug.Stack()}
			}
		}()
		errc <- d.Run(ctx)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serveMetrics serves /metrics on addr until ctx is done. A listener
// failure is logged and does not end the session.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("metrics listener started", slog.String("addr", addr))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
