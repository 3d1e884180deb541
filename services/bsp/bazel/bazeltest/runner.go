// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bazeltest provides a scripted bazel.Runner for tests.
package bazeltest

import (
	"context"
	"sync"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
)

// Response is the scripted outcome of one subcommand.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Err makes Run fail as if the binary could not be started.
	Err error
}

// Runner answers commands by their first argument (aquery, build, info).
// Unscripted subcommands exit with code 2.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []bazel.Command
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On scripts the response for a subcommand and returns r for chaining.
func (r *Runner) On(subcommand string, resp Response) *Runner {
	return r.OnSequence(subcommand, resp)
}

// OnSequence scripts successive responses for a subcommand. The last one
// repeats once the others are used up.
func (r *Runner) OnSequence(subcommand string, resps ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[subcommand] = resps
	return r
}

// Run implements bazel.Runner.
func (r *Runner) Run(_ context.Context, cmd bazel.Command) (*bazel.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, cmd)

	sub := ""
	if len(cmd.Args) > 0 {
		sub = cmd.Args[0]
	}
	queue := r.responses[sub]
	if len(queue) == 0 {
		return &bazel.Result{Stderr: []byte("unexpected command " + sub), ExitCode: 2}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[sub] = queue[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &bazel.Result{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.ExitCode,
	}, nil
}

// Calls returns every command run so far whose first argument is
// subcommand, or all commands when subcommand is empty.
func (r *Runner) Calls(subcommand string) []bazel.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []bazel.Command
	for _, c := range r.calls {
		if subcommand == "" || (len(c.Args) > 0 && c.Args[0] == subcommand) {
			out = append(out, c)
		}
	}
	return out
}

var _ bazel.Runner = (*Runner)(nil)
