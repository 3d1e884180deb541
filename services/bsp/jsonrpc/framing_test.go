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
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestReader_ReadMessage(t *testing.T) {
	t.Run("reads valid message", func(t *testing.T) {
		msg := `{"jsonrpc":"2.0","id":1,"method":"build/initialize"}`
		r := NewReader(strings.NewReader(frame(msg)))

		body, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, msg, string(body))
	})

	t.Run("handles multiple headers and case", func(t *testing.T) {
		msg := `{"jsonrpc":"2.0","method":"build/initialized"}`
		input := fmt.Sprintf("content-type: application/vscode-jsonrpc; charset=utf-8\r\ncontent-length: %d\r\n\r\n%s", len(msg), msg)
		r := NewReader(strings.NewReader(input))

		body, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, msg, string(body))
	})

	t.Run("reads consecutive messages", func(t *testing.T) {
		first := `{"id":1}`
		second := `{"id":2}`
		r := NewReader(strings.NewReader(frame(first) + frame(second)))

		body, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, first, string(body))

		body, err = r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, second, string(body))

		_, err = r.ReadMessage()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})

	t.Run("accepts zero length body", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Length: 0\r\n\r\n"))
		body, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("eof before any header is end of stream", func(t *testing.T) {
		r := NewReader(strings.NewReader(""))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})

	t.Run("eof before content length is end of stream", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Type: application/json\r\n"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})

	t.Run("eof after content length is incomplete", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Length: 12\r\n"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrIncompleteMessage)
		assert.False(t, errors.Is(err, ErrEndOfStream))
	})

	t.Run("missing content length is a framing error", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Type: application/json\r\n\r\n{}"))
		_, err := r.ReadMessage()

		var fe *FramingError
		require.ErrorAs(t, err, &fe)
		assert.ErrorIs(t, err, ErrFraming)
		assert.Contains(t, fe.Reason, "missing Content-Length")
	})

	t.Run("non numeric content length", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Length: abc\r\n\r\n"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("negative content length", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Length: -1\r\n\r\n"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("header without colon", func(t *testing.T) {
		r := NewReader(strings.NewReader("garbage\r\n\r\n"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("truncated body is incomplete", func(t *testing.T) {
		r := NewReader(strings.NewReader("Content-Length: 20\r\n\r\n{\"id\":1}"))
		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrIncompleteMessage)
		assert.ErrorIs(t, err, ErrFraming)
		assert.False(t, errors.Is(err, ErrEndOfStream))
	})
}

func TestWriter_WriteMessage(t *testing.T) {
	t.Run("writes Content-Length header", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		require.NoError(t, w.WriteMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`)))
		assert.Equal(t, frame(`{"jsonrpc":"2.0","id":1,"result":null}`), buf.String())
	})

	t.Run("flushes before returning", func(t *testing.T) {
		pr, pw := io.Pipe()
		w := NewWriter(pw)

		done := make(chan error, 1)
		go func() {
			done <- w.WriteMessage([]byte(`{}`))
		}()

		r := NewReader(pr)
		body, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, `{}`, string(body))
		require.NoError(t, <-done)
	})

	t.Run("reports sink errors", func(t *testing.T) {
		pr, pw := io.Pipe()
		require.NoError(t, pr.Close())

		w := NewWriter(pw)
		assert.Error(t, w.WriteMessage([]byte(`{}`)))
	})
}

func TestFraming_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payloads := rapid.SliceOfN(rapid.SliceOf(rapid.Byte()), 1, 8).Draw(t, "payloads")

		var buf bytes.Buffer
		w := NewWriter(&buf)
		for _, p := range payloads {
			if err := w.WriteMessage(p); err != nil {
				t.Fatalf("write: %v", err)
			}
		}

		r := NewReader(&buf)
		for i, want := range payloads {
			got, err := r.ReadMessage()
			if err != nil {
				t.Fatalf("read %d: %v", i, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("payload %d: got %q, want %q", i, got, want)
			}
		}
		if _, err := r.ReadMessage(); !errors.Is(err, ErrEndOfStream) {
			t.Fatalf("expected end of stream, got %v", err)
		}
	})
}

func TestFraming_TruncatedBody(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "payload")
		cut := rapid.IntRange(0, len(payload)-1).Draw(t, "cut")

		var buf bytes.Buffer
		if err := NewWriter(&buf).WriteMessage(payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		headerLen := buf.Len() - len(payload)
		truncated := buf.Bytes()[:headerLen+cut]

		_, err := NewReader(bytes.NewReader(truncated)).ReadMessage()
		if !errors.Is(err, ErrIncompleteMessage) {
			t.Fatalf("expected incomplete message, got %v", err)
		}
	})
}
