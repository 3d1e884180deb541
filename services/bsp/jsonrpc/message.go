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
	"fmt"
)

// Version is the JSON-RPC version used by BSP.
const Version = "2.0"

var nullID = json.RawMessage("null")

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Message is an inbound request or notification.
//
// ID is kept as raw JSON so it can be echoed back byte-for-byte, whether the
// client uses numbers or strings.
type Message struct {
	// JSONRPC is the protocol version, expected to be "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier. Absent for notifications.
	ID json.RawMessage `json:"id,omitempty"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params holds the undecoded method parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message carries no id and therefore
// must not be answered.
func (m *Message) IsNotification() bool {
	id := bytes.TrimSpace(m.ID)
	return len(id) == 0 || bytes.Equal(id, nullID)
}

// DecodeParams unmarshals Params into v. Missing params leave v untouched.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 || bytes.Equal(bytes.TrimSpace(m.Params), nullID) {
		return nil
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return &ResponseError{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("invalid params for %s: %v", m.Method, err),
		}
	}
	return nil
}

// DecodeMessage parses a framed body into a Message.
//
// Description:
//
//	The body must be a JSON object with a non-empty method. Responses sent
//	by the client (objects without a method) are rejected.
//
// Inputs:
//
//	body - One message body as returned by Reader.ReadMessage.
//
// Outputs:
//
//	*Message - The decoded message.
//	error - Wraps ErrParse when the body is not a valid envelope.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if msg.Method == "" {
		return nil, fmt.Errorf("%w: missing method", ErrParse)
	}
	return &msg, nil
}

// Response is an outbound reply to a request.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID echoes the request id.
	ID json.RawMessage `json:"id"`

	// Result is the method result. Encoded as null on success with no value.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is set instead of Result when the request failed.
	Error *ResponseError `json:"error,omitempty"`
}

// Notification is an outbound message that expects no reply.
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the notification method.
	Method string `json:"method"`

	// Params contains the notification parameters.
	Params any `json:"params,omitempty"`
}

// NewResponse builds a success response. A nil result is encoded as null.
func NewResponse(id json.RawMessage, result any) (*Response, error) {
	raw := nullID
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		raw = data
	}
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, rerr *ResponseError) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Error: rerr}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return nullID
	}
	return id
}
