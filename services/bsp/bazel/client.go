// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bazel runs the Bazel commands the build server depends on:
// aquery for the action graph, build for prepare, and info for the
// execution root.
package bazel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultBinary is the build tool looked up on PATH when none is configured.
const DefaultBinary = "bazel"

// CompileMnemonic selects the actions whose arguments are served to the
// editor.
const CompileMnemonic = "SwiftCompile"

// QueryExpression returns the aquery filter for every compile action in the
// dependency closure of target.
func QueryExpression(target string) string {
	return fmt.Sprintf("mnemonic(%q, deps(%s))", CompileMnemonic, target)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Binary is the build tool executable. Defaults to DefaultBinary.
	Binary string

	// Workspace is the directory every command runs from.
	Workspace string

	// ExtraArgs are appended to aquery and build invocations.
	ExtraArgs []string
}

// Client issues build tool commands for one workspace.
//
// Thread Safety:
//
//	Safe for concurrent use if the Runner is.
type Client struct {
	runner Runner
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a Client.
//
// Inputs:
//
//	runner - Executes commands. Use ExecRunner{} in production.
//	cfg - Binary, workspace and extra arguments.
//	logger - Logger for command lines and failures. Nil uses slog.Default().
//
// Outputs:
//
//	*Client - The client.
func NewClient(runner Runner, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{runner: runner, cfg: cfg, logger: logger}
}

// Aquery runs the action graph query for target and returns its jsonproto
// output.
//
// Description:
//
//	Runs `<bazel> aquery 'mnemonic("SwiftCompile", deps(<target>))'
//	--output=jsonproto <extra args...>` from the workspace.
//
// Outputs:
//
//	[]byte - The raw document.
//	error - *SubprocessError on a non-zero exit, empty output, or output
//	        that is not JSON.
func (c *Client) Aquery(ctx context.Context, target string) ([]byte, error) {
	args := append([]string{"aquery", QueryExpression(target), "--output=jsonproto"}, c.cfg.ExtraArgs...)
	res, err := c.run(ctx, "aquery", args)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(res.Stdout)) == 0 {
		return nil, &SubprocessError{
			Argv:     c.argv(args),
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr),
			Reason:   "produced no output",
		}
	}
	if !json.Valid(res.Stdout) {
		return nil, &SubprocessError{
			Argv:     c.argv(args),
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr),
			Reason:   "produced invalid output",
		}
	}
	return res.Stdout, nil
}

// Build runs `<bazel> build <target> <extra args...>`.
func (c *Client) Build(ctx context.Context, target string) error {
	args := append([]string{"build", target}, c.cfg.ExtraArgs...)
	_, err := c.run(ctx, "build", args)
	return err
}

// ExecutionRoot runs `<bazel> info execution_root` and returns the path
// with surrounding whitespace removed.
func (c *Client) ExecutionRoot(ctx context.Context) (string, error) {
	args := []string{"info", "execution_root"}
	res, err := c.run(ctx, "info", args)
	if err != nil {
		return "", err
	}
	root := strings.TrimSpace(string(res.Stdout))
	if root == "" {
		return "", &SubprocessError{
			Argv:     c.argv(args),
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr),
			Reason:   "printed no execution root",
		}
	}
	return root, nil
}

func (c *Client) argv(args []string) []string {
	return append([]string{c.cfg.Binary}, args...)
}

// run executes one command and converts failures into SubprocessError.
func (c *Client) run(ctx context.Context, command string, args []string) (res *Result, err error) {
	cmd := Command{Name: c.cfg.Binary, Args: args, Dir: c.cfg.Workspace}

	ctx, span := startCommandSpan(ctx, command, cmd)
	defer span.End()
	start := time.Now()
	defer func() {
		exitCode := -1
		if res != nil {
			exitCode = res.ExitCode
		}
		setCommandSpanResult(span, exitCode, err)
		recordCommandMetrics(ctx, command, time.Since(start), err == nil)
	}()

	c.logger.Debug("running build tool",
		slog.String("command", command),
		slog.Any("argv", cmd.Argv()),
		slog.String("dir", cmd.Dir),
	)

	res, err = c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, &SubprocessError{Argv: cmd.Argv(), ExitCode: -1, Reason: "could not be started", Err: err}
	}

	c.logger.Debug("build tool finished",
		slog.String("command", command),
		slog.Int("exit_code", res.ExitCode),
		slog.Int("stdout_bytes", len(res.Stdout)),
		slog.Duration("duration", time.Since(start)),
	)

	if res.ExitCode != 0 {
		return res, &SubprocessError{
			Argv:     cmd.Argv(),
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr),
			Reason:   "exited with failure",
		}
	}
	return res, nil
}
