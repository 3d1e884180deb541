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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/sourcekit-bsp/pkg/logging"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/protocol"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = protocol.ServerVersion

// app holds the streams, flags and shared state of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	runner bazel.Runner

	// Persistent flags.
	settingsPath   string
	logLevel       string
	logDir         string
	logJSON        bool
	quiet          bool
	traceExporter  string
	metricExporter string
	metricsAddr    string

	settings config.Settings
	logger   *logging.Logger

	// logExporter, when set, receives a copy of every log record.
	logExporter logging.LogExporter
}

func newApp(stdin io.Reader, stdout, stderr io.Writer, runner bazel.Runner) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr, runner: runner}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sourcekit-bsp",
		Short: "Build Server Protocol server for Bazel Swift workspaces",
		Long: `sourcekit-bsp answers SourceKit-LSP build server requests for a Bazel
workspace. It speaks the protocol on stdin/stdout and reads its project
configuration from <workspace>/buildServer.json.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runServe,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.settingsPath, "settings", config.DefaultSettingsPath(), "path to the YAML settings file")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&a.logDir, "log-dir", "", "directory for JSON log files (empty disables)")
	f.BoolVar(&a.logJSON, "log-json", false, "write JSON logs to stderr")
	f.BoolVar(&a.quiet, "quiet", false, "disable stderr logging")
	f.StringVar(&a.traceExporter, "trace-exporter", "", "trace exporter: none, stdout, otlp")
	f.StringVar(&a.metricExporter, "metric-exporter", "", "metric exporter: none, stdout, prometheus")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "listen address for /metrics with the prometheus exporter")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the build server protocol on stdin/stdout (default)",
			Args:  cobra.NoArgs,
			RunE:  a.runServe,
		},
		a.resolveCommand(),
		a.settingsCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sourcekit-bsp %s (bsp %s)\n", version, protocol.BSPVersion)
			},
		},
	)
	return root
}

// setup loads settings, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadSettings(a.settingsPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		settings.Log.Level = a.logLevel
	}
	if flags.Changed("log-dir") {
		settings.Log.Dir = a.logDir
	}
	if flags.Changed("log-json") {
		settings.Log.JSON = &a.logJSON
	}
	if flags.Changed("quiet") {
		settings.Log.Quiet = a.quiet
	}
	if flags.Changed("trace-exporter") {
		settings.Telemetry.TraceExporter = a.traceExporter
	}
	if flags.Changed("metric-exporter") {
		settings.Telemetry.MetricExporter = a.metricExporter
	}
	if flags.Changed("metrics-addr") {
		settings.Telemetry.MetricsAddr = a.metricsAddr
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: flags: %w", config.ErrConfig, err)
	}
	a.settings = settings

	level, err := logging.ParseLevel(settings.Log.Level)
	if err != nil {
		return err
	}
	jsonLogs := !a.stderrIsTerminal()
	if settings.Log.JSON != nil {
		jsonLogs = *settings.Log.JSON
	}

	a.logger = logging.New(logging.Config{
		Level:    level,
		LogDir:   settings.Log.Dir,
		Service:  "sourcekit-bsp",
		JSON:     jsonLogs,
		Quiet:    settings.Log.Quiet,
		Output:   a.stderr,
		Exporter: a.logExporter,
	})
	slog.SetDefault(a.logger.Slog())
	return nil
}

func (a *app) stderrIsTerminal() bool {
	f, ok := a.stderr.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (a *app) reportError(err error) {
	if a.logger != nil {
		a.logger.Error("sourcekit-bsp failed", slog.String("error", err.Error()))
	}
	fmt.Fprintf(a.stderr, "sourcekit-bsp: %v\n", err)
}

func (a *app) reportPanic(p *panicError) {
	if a.logger != nil {
		a.logger.Error("sourcekit-bsp panicked",
			slog.String("panic", fmt.Sprint(p.value)),
			slog.String("stack", string(p.stack)),
		)
	}
	fmt.Fprintf(a.stderr, "sourcekit-bsp: %v\n%s", p, p.stack)
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
