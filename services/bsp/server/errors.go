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
	"errors"
	"fmt"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
)

// Sentinel errors for the dispatcher.
var (
	// ErrProtocol indicates a message the server cannot continue after:
	// an undecodable body, or a first message that is not initialize.
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownMethod indicates a method outside the supported set. It
	// matches ErrProtocol as well.
	ErrUnknownMethod = fmt.Errorf("%w: unknown method", ErrProtocol)

	// ErrTargetNotFound indicates a target or file absent from the last
	// resolution.
	ErrTargetNotFound = errors.New("target not found")
)

func targetNotFound(uri string) error {
	return fmt.Errorf("%w: %s", ErrTargetNotFound, uri)
}

// subprocessData is attached to -32002 responses.
type subprocessData struct {
	Argv     []string `json:"argv"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr,omitempty"`
}

// toResponseError maps a handler error onto a JSON-RPC error object.
func toResponseError(err error) *jsonrpc.ResponseError {
	var rerr *jsonrpc.ResponseError
	if errors.As(err, &rerr) {
		return rerr
	}

	var serr *bazel.SubprocessError
	switch {
	case errors.Is(err, ErrTargetNotFound):
		return &jsonrpc.ResponseError{Code: jsonrpc.CodeTargetNotFound, Message: err.Error()}
	case errors.As(err, &serr):
		return &jsonrpc.ResponseError{
			Code:    jsonrpc.CodeSubprocessFailed,
			Message: fmt.Sprintf("%s %s", serr.Argv[0], serr.Reason),
			Data:    subprocessData{Argv: serr.Argv, ExitCode: serr.ExitCode, Stderr: serr.Stderr},
		}
	case errors.Is(err, bazel.ErrSubprocess):
		return &jsonrpc.ResponseError{Code: jsonrpc.CodeSubprocessFailed, Message: err.Error()}
	case errors.Is(err, aquery.ErrResolution), errors.Is(err, aquery.ErrInvalidDocument):
		return &jsonrpc.ResponseError{Code: jsonrpc.CodeResolutionFailed, Message: err.Error()}
	default:
		return &jsonrpc.ResponseError{Code: jsonrpc.CodeInternalError, Message: err.Error()}
	}
}
