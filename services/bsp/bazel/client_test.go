// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bazel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel/bazeltest"
)

func newClient(runner bazel.Runner, extra ...string) *bazel.Client {
	return bazel.NewClient(runner, bazel.ClientConfig{Workspace: "/ws", ExtraArgs: extra}, nil)
}

func TestQueryExpression(t *testing.T) {
	assert.Equal(t, `mnemonic("SwiftCompile", deps(//Sources/Components))`, bazel.QueryExpression("//Sources/Components"))
}

func TestClient_Aquery(t *testing.T) {
	t.Run("builds argv and returns stdout", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("aquery", bazeltest.Response{Stdout: `{"actions":[]}`})
		c := newClient(runner, "--config=ios")

		out, err := c.Aquery(context.Background(), "//App:App")
		require.NoError(t, err)
		assert.Equal(t, `{"actions":[]}`, string(out))

		calls := runner.Calls("aquery")
		require.Len(t, calls, 1)
		assert.Equal(t, "bazel", calls[0].Name)
		assert.Equal(t, "/ws", calls[0].Dir)
		assert.Equal(t, []string{
			"aquery", `mnemonic("SwiftCompile", deps(//App:App))`, "--output=jsonproto", "--config=ios",
		}, calls[0].Args)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("aquery", bazeltest.Response{Stderr: "ERROR: no such target", ExitCode: 1})
		_, err := newClient(runner).Aquery(context.Background(), "//Nope")

		var se *bazel.SubprocessError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, bazel.ErrSubprocess)
		assert.Equal(t, 1, se.ExitCode)
		assert.Equal(t, "ERROR: no such target", se.Stderr)
		assert.Contains(t, err.Error(), "exit code 1")
	})

	t.Run("empty stdout", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("aquery", bazeltest.Response{Stdout: "\n"})
		_, err := newClient(runner).Aquery(context.Background(), "//App")

		var se *bazel.SubprocessError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "produced no output", se.Reason)
	})

	t.Run("non json stdout", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("aquery", bazeltest.Response{
			Stdout: "WARNING: not json at all",
			Stderr: "Loading: 0 packages loaded",
		})
		_, err := newClient(runner).Aquery(context.Background(), "//App")

		var se *bazel.SubprocessError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "produced invalid output", se.Reason)
		assert.Equal(t, 0, se.ExitCode)
		assert.Equal(t, "Loading: 0 packages loaded", se.Stderr)
		assert.Equal(t, "aquery", se.Argv[1])
	})

	t.Run("binary cannot start", func(t *testing.T) {
		cause := errors.New("exec: permission denied")
		runner := bazeltest.NewRunner().On("aquery", bazeltest.Response{Err: cause})
		_, err := newClient(runner).Aquery(context.Background(), "//App")

		assert.ErrorIs(t, err, bazel.ErrSubprocess)
		assert.ErrorIs(t, err, cause)
	})
}

func TestClient_Build(t *testing.T) {
	runner := bazeltest.NewRunner().On("build", bazeltest.Response{})
	c := bazel.NewClient(runner, bazel.ClientConfig{Binary: "/opt/bazelisk", Workspace: "/ws", ExtraArgs: []string{"-c", "dbg"}}, nil)

	require.NoError(t, c.Build(context.Background(), "//App:App"))

	calls := runner.Calls("build")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/opt/bazelisk", "build", "//App:App", "-c", "dbg"}, calls[0].Argv())

	runner.On("build", bazeltest.Response{ExitCode: 1})
	assert.ErrorIs(t, c.Build(context.Background(), "//App:App"), bazel.ErrSubprocess)
}

func TestClient_ExecutionRoot(t *testing.T) {
	t.Run("trims trailing newline", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("info", bazeltest.Response{Stdout: "/private/var/tmp/_bazel/abc/execroot/_main\n"})

		root, err := newClient(runner).ExecutionRoot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/private/var/tmp/_bazel/abc/execroot/_main", root)
		assert.Equal(t, []string{"info", "execution_root"}, runner.Calls("info")[0].Args)
	})

	t.Run("empty output", func(t *testing.T) {
		runner := bazeltest.NewRunner().On("info", bazeltest.Response{})
		_, err := newClient(runner).ExecutionRoot(context.Background())
		assert.ErrorIs(t, err, bazel.ErrSubprocess)
	})

	t.Run("unscripted command fails", func(t *testing.T) {
		_, err := newClient(bazeltest.NewRunner()).ExecutionRoot(context.Background())
		var se *bazel.SubprocessError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 2, se.ExitCode)
	})
}
