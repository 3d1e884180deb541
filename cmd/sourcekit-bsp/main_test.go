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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sourcekit-bsp/pkg/logging"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel/bazeltest"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/protocol"
)

const workspaceConfig = `{
  "name": "sourcekit-bsp",
  "target": "//Sources/Components",
  "sdk": "/SDK",
  "executionRoot": "/exec"
}`

type cli struct {
	t        *testing.T
	settings string
	root     string
	runner   *bazeltest.Runner
	logs     *logging.BufferedExporter
	stdin    bytes.Buffer
	stdout   bytes.Buffer
	stderr   bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte(workspaceConfig), 0o644))

	fixture, err := os.ReadFile(filepath.Join("..", "..", "services", "bsp", "aquery", "testdata", "two_targets.json"))
	require.NoError(t, err)

	return &cli{
		t:        t,
		settings: filepath.Join(t.TempDir(), "settings.yaml"),
		root:     root,
		runner:   bazeltest.NewRunner().On("aquery", bazeltest.Response{Stdout: string(fixture)}),
		logs:     logging.NewBufferedExporter(),
	}
}

func (c *cli) run(args ...string) int {
	base := []string{"--settings", c.settings, "--log-dir", "", "--log-json"}
	a := newApp(&c.stdin, &c.stdout, &c.stderr, c.runner)
	a.logExporter = c.logs
	return execute(a, append(base, args...))
}

func (c *cli) send(v map[string]any) {
	c.t.Helper()
	v["jsonrpc"] = "2.0"
	body, err := json.Marshal(v)
	require.NoError(c.t, err)
	require.NoError(c.t, jsonrpc.NewWriter(&c.stdin).WriteMessage(body))
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	require.Equal(t, 0, c.run("version"))
	assert.Equal(t, "sourcekit-bsp "+version+" (bsp "+protocol.BSPVersion+")\n", c.stdout.String())
}

func TestResolve(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		c := newCLI(t)
		fixture := filepath.Join("..", "..", "services", "bsp", "aquery", "testdata", "two_targets.json")
		require.Equal(t, 0, c.run("resolve", "--root", c.root, "--from-file", fixture), c.stderr.String())

		var targets []map[string]any
		require.NoError(t, json.Unmarshal(c.stdout.Bytes(), &targets))
		assert.Len(t, targets, 2)
		assert.Empty(t, c.runner.Calls(""))
	})

	t.Run("runs aquery", func(t *testing.T) {
		c := newCLI(t)
		require.Equal(t, 0, c.run("resolve", "--root", c.root), c.stderr.String())

		var targets []map[string]any
		require.NoError(t, json.Unmarshal(c.stdout.Bytes(), &targets))
		assert.Len(t, targets, 2)
		assert.Len(t, c.runner.Calls("aquery"), 1)
	})

	t.Run("missing config", func(t *testing.T) {
		c := newCLI(t)
		assert.Equal(t, 1, c.run("resolve", "--root", t.TempDir()))
		assert.Contains(t, c.logs.Messages(), "sourcekit-bsp failed")
		assert.Contains(t, c.stderr.String(), "buildServer.json")
	})
}

func TestServe(t *testing.T) {
	t.Run("clean session exits zero", func(t *testing.T) {
		c := newCLI(t)
		c.send(map[string]any{"id": 1, "method": "build/initialize", "params": map[string]any{
			"displayName": "SourceKit-LSP",
			"rootUri":     protocol.FileURI(c.root),
		}})
		c.send(map[string]any{"method": "build/initialized"})
		c.send(map[string]any{"id": 2, "method": "workspace/buildTargets"})
		c.send(map[string]any{"id": 3, "method": "build/shutdown"})
		c.send(map[string]any{"method": "build/exit"})

		require.Equal(t, 0, c.run("serve"), c.stderr.String())

		r := jsonrpc.NewReader(bytes.NewReader(c.stdout.Bytes()))
		var replies int
		for {
			body, err := r.ReadMessage()
			if err != nil {
				require.ErrorIs(t, err, jsonrpc.ErrEndOfStream)
				break
			}
			assert.NotContains(t, string(body), `"error"`)
			replies++
		}
		assert.Equal(t, 3, replies)
		assert.Contains(t, c.logs.Messages(), "session exited")
	})

	t.Run("unknown method exits one", func(t *testing.T) {
		c := newCLI(t)
		c.send(map[string]any{"id": 1, "method": "build/initialize", "params": map[string]any{
			"rootUri": protocol.FileURI(c.root),
		}})
		c.send(map[string]any{"id": 2, "method": "textDocument/hover"})

		assert.Equal(t, 1, c.run())
		assert.Contains(t, c.logs.Messages(), "unknown method, ending session")
		assert.Contains(t, c.logs.Messages(), "sourcekit-bsp failed")
	})

	t.Run("quiet still exports records", func(t *testing.T) {
		c := newCLI(t)
		c.send(map[string]any{"id": 1, "method": "build/initialize", "params": map[string]any{
			"rootUri": protocol.FileURI(c.root),
		}})
		c.send(map[string]any{"method": "build/exit"})

		require.Equal(t, 0, c.run("--quiet"))
		assert.Empty(t, c.stderr.String())

		var sessionIDs []any
		for _, e := range c.logs.Entries() {
			if e.Message == "session initialized" {
				sessionIDs = append(sessionIDs, e.Attrs["session_id"])
			}
		}
		require.Len(t, sessionIDs, 1)
		assert.NotEmpty(t, sessionIDs[0])
	})

	t.Run("invalid exporter flag", func(t *testing.T) {
		c := newCLI(t)
		assert.Equal(t, 1, c.run("--trace-exporter", "zipkin"))
		assert.Contains(t, c.stderr.String(), "trace")
	})
}

func TestSettingsCommand(t *testing.T) {
	t.Run("prints effective settings", func(t *testing.T) {
		c := newCLI(t)
		require.Equal(t, 0, c.run("settings", "--log-level", "debug"))
		assert.Contains(t, c.stdout.String(), "level: debug")
	})

	t.Run("write", func(t *testing.T) {
		c := newCLI(t)
		require.Equal(t, 0, c.run("settings", "--write", "--metric-exporter", "prometheus"))
		assert.True(t, strings.HasPrefix(c.stdout.String(), "wrote "))

		loaded, err := config.LoadSettings(c.settings)
		require.NoError(t, err)
		assert.Equal(t, "prometheus", loaded.Telemetry.MetricExporter)
	})
}
