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
	"errors"
	"fmt"
)

// Sentinel errors for the transport.
var (
	// ErrEndOfStream indicates the peer closed the stream between messages.
	// It is the normal way a session ends when the client goes away.
	ErrEndOfStream = errors.New("end of stream")

	// ErrFraming indicates the header block could not be parsed.
	ErrFraming = errors.New("framing error")

	// ErrIncompleteMessage indicates the stream ended inside a message body.
	// It matches ErrFraming as well.
	ErrIncompleteMessage = fmt.Errorf("%w: stream ended inside message body", ErrFraming)

	// ErrParse indicates a framed body was not a valid JSON-RPC envelope.
	ErrParse = errors.New("invalid json-rpc message")
)

// FramingError describes a malformed header block.
type FramingError struct {
	// Reason is a short description of what was wrong.
	Reason string

	// Line is the offending header line, if any.
	Line string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("framing error: %s (header %q)", e.Reason, e.Line)
	}
	return "framing error: " + e.Reason
}

// Unwrap lets errors.Is match ErrFraming.
func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// JSON-RPC error codes. The -3200x range is server defined.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTargetNotFound   = -32001
	CodeSubprocessFailed = -32002
	CodeResolutionFailed = -32003
)

// ResponseError is the error object of a JSON-RPC response. It doubles as a
// Go error so handlers can return it directly.
type ResponseError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains optional additional information.
	Data any `json:"data,omitempty"`
}

// NewError creates a ResponseError with the given code and message.
func NewError(code int, format string, args ...any) *ResponseError {
	return &ResponseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("json-rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// IsParseError returns true for -32700.
func (e *ResponseError) IsParseError() bool {
	return e.Code == CodeParseError
}

// IsMethodNotFound returns true for -32601.
func (e *ResponseError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsTargetNotFound returns true for -32001.
func (e *ResponseError) IsTargetNotFound() bool {
	return e.Code == CodeTargetNotFound
}
