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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel/bazeltest"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/protocol"
)

const pinnedConfig = `{
  "name": "sourcekit-bsp",
  "target": "//Sources/Components",
  "sdk": "/SDK",
  "executionRoot": "/exec",
  "indexStorePath": "/idx/store",
  "indexDatabasePath": "/idx/db",
  "aqueryArgs": ["--config=dev"],
  "defaultSettings": ["-sdk", "/SDK"]
}`

// wireMessage is anything the server writes: a response or a notification.
type wireMessage struct {
	ID     json.RawMessage        `json:"id"`
	Method string                 `json:"method"`
	Result json.RawMessage        `json:"result"`
	Error  *jsonrpc.ResponseError `json:"error"`
	Params json.RawMessage        `json:"params"`
}

// harness drives a Dispatcher over in-memory streams. Input is scripted
// up front; the dispatcher runs until it exits or the script ends.
type harness struct {
	t      *testing.T
	root   string
	runner *bazeltest.Runner

	in   bytes.Buffer
	out  bytes.Buffer
	logs bytes.Buffer
}

func newHarness(t *testing.T, buildServerJSON string) *harness {
	t.Helper()
	root := t.TempDir()
	if buildServerJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "buildServer.json"), []byte(buildServerJSON), 0o644))
	}

	runner := bazeltest.NewRunner().
		On("aquery", bazeltest.Response{Stdout: readFixture(t)}).
		On("build", bazeltest.Response{Stdout: "INFO: Build completed successfully"})

	return &harness{t: t, root: root, runner: runner}
}

func readFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "aquery", "testdata", "two_targets.json"))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) rootURI() string {
	return protocol.FileURI(h.root)
}

func (h *harness) fileURI(rel string) string {
	return protocol.FileURI(filepath.Join(h.root, filepath.FromSlash(rel)))
}

func (h *harness) send(v map[string]any) *harness {
	h.t.Helper()
	v["jsonrpc"] = "2.0"
	body, err := json.Marshal(v)
	require.NoError(h.t, err)
	require.NoError(h.t, jsonrpc.NewWriter(&h.in).WriteMessage(body))
	return h
}

func (h *harness) request(id any, method string, params any) *harness {
	return h.send(map[string]any{"id": id, "method": method, "params": params})
}

func (h *harness) notify(method string, params any) *harness {
	return h.send(map[string]any{"method": method, "params": params})
}

func (h *harness) rawBody(body string) *harness {
	h.t.Helper()
	require.NoError(h.t, jsonrpc.NewWriter(&h.in).WriteMessage([]byte(body)))
	return h
}

func (h *harness) initialize(id any) *harness {
	return h.request(id, "build/initialize", map[string]any{
		"displayName":  "SourceKit-LSP",
		"version":      "6.1",
		"bspVersion":   "2.0",
		"rootUri":      h.rootURI(),
		"capabilities": map[string]any{"languageIds": []string{"swift"}},
	})
}

func (h *harness) run() (*Dispatcher, error) {
	conn := jsonrpc.NewConn(&h.in, &h.out)
	logger := slog.New(slog.NewTextHandler(&h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDispatcher(conn, Options{Runner: h.runner, Logger: logger, SessionID: "test-session"})
	return d, d.Run(context.Background())
}

// written returns everything the dispatcher wrote, in order.
func (h *harness) written() []wireMessage {
	h.t.Helper()
	r := jsonrpc.NewReader(bytes.NewReader(h.out.Bytes()))
	var msgs []wireMessage
	for {
		body, err := r.ReadMessage()
		if errors.Is(err, jsonrpc.ErrEndOfStream) {
			return msgs
		}
		require.NoError(h.t, err)

		var m wireMessage
		require.NoError(h.t, json.Unmarshal(body, &m))
		msgs = append(msgs, m)
	}
}

func decodeResult[T any](t *testing.T, m wireMessage) T {
	t.Helper()
	require.Nil(t, m.Error, "unexpected error response: %v", m.Error)
	var v T
	require.NoError(t, json.Unmarshal(m.Result, &v))
	return v
}
