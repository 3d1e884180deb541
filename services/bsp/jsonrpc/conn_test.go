// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFramed(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	body, err := NewReader(buf).ReadMessage()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestConn_Read(t *testing.T) {
	t.Run("decodes request", func(t *testing.T) {
		in := frame(`{"jsonrpc":"2.0","id":"abc","method":"workspace/buildTargets","params":{}}`)
		c := NewConn(strings.NewReader(in), &bytes.Buffer{})

		msg, err := c.Read()
		require.NoError(t, err)
		assert.Equal(t, "workspace/buildTargets", msg.Method)
		assert.Equal(t, `"abc"`, string(msg.ID))
		assert.False(t, msg.IsNotification())
	})

	t.Run("decodes notification", func(t *testing.T) {
		c := NewConn(strings.NewReader(frame(`{"jsonrpc":"2.0","method":"build/initialized"}`)), &bytes.Buffer{})

		msg, err := c.Read()
		require.NoError(t, err)
		assert.True(t, msg.IsNotification())
	})

	t.Run("null id is a notification", func(t *testing.T) {
		msg := &Message{ID: json.RawMessage("null")}
		assert.True(t, msg.IsNotification())
	})

	t.Run("invalid json wraps ErrParse", func(t *testing.T) {
		c := NewConn(strings.NewReader(frame(`{not json`)), &bytes.Buffer{})
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("missing method wraps ErrParse", func(t *testing.T) {
		c := NewConn(strings.NewReader(frame(`{"jsonrpc":"2.0","id":1,"result":null}`)), &bytes.Buffer{})
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("passes transport errors through", func(t *testing.T) {
		c := NewConn(strings.NewReader(""), &bytes.Buffer{})
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})
}

func TestConn_Reply(t *testing.T) {
	t.Run("echoes numeric id", func(t *testing.T) {
		var out bytes.Buffer
		c := NewConn(strings.NewReader(""), &out)

		require.NoError(t, c.Reply(json.RawMessage("42"), map[string]string{"ok": "yes"}))

		resp := readFramed(t, &out)
		assert.Equal(t, "2.0", resp["jsonrpc"])
		assert.EqualValues(t, 42, resp["id"])
		assert.Equal(t, map[string]any{"ok": "yes"}, resp["result"])
		assert.NotContains(t, resp, "error")
	})

	t.Run("nil result is encoded as null", func(t *testing.T) {
		var out bytes.Buffer
		c := NewConn(strings.NewReader(""), &out)

		require.NoError(t, c.Reply(json.RawMessage(`"req-1"`), nil))
		assert.Contains(t, out.String(), `"result":null`)
		assert.Contains(t, out.String(), `"id":"req-1"`)
	})

	t.Run("error response", func(t *testing.T) {
		var out bytes.Buffer
		c := NewConn(strings.NewReader(""), &out)

		require.NoError(t, c.ReplyError(json.RawMessage("7"), NewError(CodeTargetNotFound, "target %s not found", "file:///ws/x/1")))

		resp := readFramed(t, &out)
		assert.EqualValues(t, 7, resp["id"])
		assert.NotContains(t, resp, "result")
		errObj, ok := resp["error"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, CodeTargetNotFound, errObj["code"])
		assert.Equal(t, "target file:///ws/x/1 not found", errObj["message"])
	})

	t.Run("missing id becomes null", func(t *testing.T) {
		var out bytes.Buffer
		c := NewConn(strings.NewReader(""), &out)

		require.NoError(t, c.ReplyError(nil, NewError(CodeParseError, "bad")))
		assert.Contains(t, out.String(), `"id":null`)
	})
}

func TestConn_Notify(t *testing.T) {
	var out bytes.Buffer
	c := NewConn(strings.NewReader(""), &out)

	require.NoError(t, c.Notify("build/sourceKitOptionsChanged", map[string]string{"uri": "file:///a.swift"}))

	note := readFramed(t, &out)
	assert.Equal(t, "build/sourceKitOptionsChanged", note["method"])
	assert.NotContains(t, note, "id")
}

func TestMessage_DecodeParams(t *testing.T) {
	type params struct {
		URI string `json:"uri"`
	}

	t.Run("decodes", func(t *testing.T) {
		msg := &Message{Method: "m", Params: json.RawMessage(`{"uri":"file:///a"}`)}
		var p params
		require.NoError(t, msg.DecodeParams(&p))
		assert.Equal(t, "file:///a", p.URI)
	})

	t.Run("absent params", func(t *testing.T) {
		msg := &Message{Method: "m"}
		var p params
		require.NoError(t, msg.DecodeParams(&p))
		assert.Empty(t, p.URI)
	})

	t.Run("wrong shape is invalid params", func(t *testing.T) {
		msg := &Message{Method: "m", Params: json.RawMessage(`[1,2]`)}
		var p params
		err := msg.DecodeParams(&p)

		var rerr *ResponseError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, CodeInvalidParams, rerr.Code)
	})
}

func TestResponseError(t *testing.T) {
	err := &ResponseError{Code: CodeMethodNotFound, Message: "nope", Data: "x"}
	assert.True(t, err.IsMethodNotFound())
	assert.False(t, err.IsParseError())
	assert.False(t, err.IsTargetNotFound())
	assert.Equal(t, "json-rpc error -32601: nope (data: x)", err.Error())
}
