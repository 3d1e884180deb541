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
	"encoding/json"
	"fmt"
	"io"
)

// Conn is the server side of a JSON-RPC connection: framed reads from the
// client and framed writes back to it.
//
// Thread Safety:
//
//	Read must be called from a single goroutine. Writes are serialized.
type Conn struct {
	reader *Reader
	writer *Writer
}

// NewConn creates a connection reading from r and writing to w.
//
// Inputs:
//
//	r - Client to server stream (stdin for the server process).
//	w - Server to client stream (stdout for the server process).
//
// Outputs:
//
//	*Conn - The connection.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{reader: NewReader(r), writer: NewWriter(w)}
}

// Read reads and decodes the next message. Transport errors are returned
// unchanged so callers can match ErrEndOfStream, ErrFraming and
// ErrIncompleteMessage; decode errors wrap ErrParse.
func (c *Conn) Read() (*Message, error) {
	body, err := c.reader.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodeMessage(body)
}

// Reply sends a success response for the request with the given id.
func (c *Conn) Reply(id json.RawMessage, result any) error {
	resp, err := NewResponse(id, result)
	if err != nil {
		return err
	}
	return c.send(resp)
}

// ReplyError sends an error response for the request with the given id.
func (c *Conn) ReplyError(id json.RawMessage, rerr *ResponseError) error {
	return c.send(NewErrorResponse(id, rerr))
}

// Notify sends a server to client notification.
func (c *Conn) Notify(method string, params any) error {
	return c.send(&Notification{JSONRPC: Version, Method: method, Params: params})
}

func (c *Conn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.writer.WriteMessage(data)
}
