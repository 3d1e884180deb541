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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength bounds a single message body.
const MaxContentLength = 256 << 20

const contentLengthHeader = "content-length"

// =============================================================================
// READER
// =============================================================================

// Reader decodes Content-Length framed messages.
//
// Description:
//
//	Each message is a block of "Key: Value" header lines terminated by an
//	empty line, followed by exactly Content-Length bytes of body. Header
//	keys are matched case-insensitively; headers other than Content-Length
//	are ignored.
//
// Thread Safety:
//
//	Not safe for concurrent use. The dispatcher owns the only Reader.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r in a framing Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadMessage reads one framed message and returns its body.
//
// Description:
//
//	Blocks until a complete message is available. The body is returned
//	uninterpreted.
//
// Outputs:
//
//	[]byte - The message body.
//	error - ErrEndOfStream if the stream closed before a Content-Length
//	        header was read; *FramingError for malformed headers;
//	        ErrIncompleteMessage if the stream ended after Content-Length
//	        but before the full body.
func (r *Reader) ReadMessage() ([]byte, error) {
	contentLength := -1

	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if contentLength >= 0 {
					return nil, fmt.Errorf("%w: stream ended inside headers", ErrIncompleteMessage)
				}
				return nil, ErrEndOfStream
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		// Empty line marks end of headers
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &FramingError{Reason: "header line without colon", Line: line}
		}
		if !strings.EqualFold(strings.TrimSpace(key), contentLengthHeader) {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, &FramingError{Reason: "invalid Content-Length value", Line: line}
		}
		if n < 0 || n > MaxContentLength {
			return nil, &FramingError{Reason: fmt.Sprintf("Content-Length %d out of range", n), Line: line}
		}
		contentLength = n
	}

	if contentLength < 0 {
		return nil, &FramingError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes", ErrIncompleteMessage, contentLength)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// =============================================================================
// WRITER
// =============================================================================

type flusher interface {
	Flush() error
}

// Writer encodes Content-Length framed messages.
//
// Thread Safety:
//
//	Safe for concurrent use; each message is written atomically.
type Writer struct {
	mu   sync.Mutex
	buf  *bufio.Writer
	sink io.Writer
}

// NewWriter wraps w in a framing Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w), sink: w}
}

// WriteMessage frames body and flushes it to the sink before returning.
func (w *Writer) WriteMessage(body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.buf, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.buf.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if f, ok := w.sink.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush sink: %w", err)
		}
	}
	return nil
}
