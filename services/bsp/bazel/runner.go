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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Command is one argv invocation run from Dir.
type Command struct {
	// Name is the executable, resolved through PATH.
	Name string

	// Args are the arguments, passed verbatim (no shell).
	Args []string

	// Dir is the working directory.
	Dir string
}

// Argv returns Name followed by Args.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// Result is the captured outcome of a Command that ran to completion.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands synchronously.
//
// Implementations return an error only when the command could not be run
// at all; a non-zero exit is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts cmd, waits for it to exit and returns its captured output.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, cmd.Name)
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err = c.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return nil, fmt.Errorf("run %s: %w", cmd.Name, err)
	}
}

var _ Runner = ExecRunner{}
