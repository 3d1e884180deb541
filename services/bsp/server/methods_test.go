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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
)

func TestParseMethod(t *testing.T) {
	for method, name := range methodNames {
		assert.Equal(t, method, ParseMethod(name), name)
		assert.Equal(t, name, method.String())
	}
	assert.Equal(t, MethodUnknown, ParseMethod("workspace/reload"))
	assert.Equal(t, MethodUnknown, ParseMethod(""))
	assert.Equal(t, "unknown", MethodUnknown.String())
	assert.Len(t, handlers, len(methodNames), "every known method has a handler")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestTagsForKind(t *testing.T) {
	assert.Equal(t, []string{"library"}, tagsForKind("swift_library"))
	assert.Equal(t, []string{"library"}, tagsForKind(""))
	assert.Equal(t, []string{"application"}, tagsForKind("ios_application"))
	assert.Equal(t, []string{"application"}, tagsForKind("swift_binary"))
	assert.Equal(t, []string{"test"}, tagsForKind("ios_unit_test"))
}

func TestSession_Lookup(t *testing.T) {
	s := &Session{}
	assert.False(t, s.Resolved())

	s.ReplaceTargets([]aquery.ResolvedTarget{
		{ID: 1, URI: "file:///ws/A/1", InputFiles: []string{"file:///ws/A/a.swift"}},
		{ID: 2, URI: "file:///ws/B/2", InputFiles: []string{"file:///ws/B/b.swift", "file:///ws/A/a.swift"}},
	})
	assert.True(t, s.Resolved())

	tg, ok := s.FindTarget("file:///ws/B/2")
	assert.True(t, ok)
	assert.Equal(t, uint32(2), tg.ID)

	_, ok = s.FindTarget("file:///ws/C/3")
	assert.False(t, ok)

	tg, ok = s.FindByInputFile("file:///ws/A/a.swift")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), tg.ID, "first owner wins")

	_, ok = s.FindByInputFile("file:///ws/none.swift")
	assert.False(t, ok)
}

func TestToResponseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"response error passes through", jsonrpc.NewError(jsonrpc.CodeInvalidParams, "bad"), jsonrpc.CodeInvalidParams},
		{"target not found", targetNotFound("file:///x"), jsonrpc.CodeTargetNotFound},
		{"subprocess", &bazel.SubprocessError{Argv: []string{"bazel", "aquery"}, ExitCode: 1, Reason: "exited with failure"}, jsonrpc.CodeSubprocessFailed},
		{"wrapped subprocess sentinel", fmt.Errorf("x: %w", bazel.ErrSubprocess), jsonrpc.CodeSubprocessFailed},
		{"resolution", &aquery.DanglingReferenceError{Table: "targets", ID: 3}, jsonrpc.CodeResolutionFailed},
		{"invalid document", aquery.ErrInvalidDocument, jsonrpc.CodeResolutionFailed},
		{"anything else", errors.New("boom"), jsonrpc.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, toResponseError(tt.err).Code)
		})
	}
}
