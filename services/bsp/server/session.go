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
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
)

// Session is the state established by build/initialize.
//
// Thread Safety:
//
//	Not safe for concurrent use. Only the dispatcher goroutine touches it.
type Session struct {
	// ID identifies the session in logs and spans.
	ID string

	// Config is the validated buildServer.json.
	Config *config.BuildServer

	// RootPath is the workspace root taken from rootUri.
	RootPath string

	// ExecutionRoot is Bazel's execution root.
	ExecutionRoot string

	// Targets is the result of the last successful resolution.
	Targets []aquery.ResolvedTarget

	resolved bool
}

// ReplaceTargets swaps in the result of a resolution.
func (s *Session) ReplaceTargets(targets []aquery.ResolvedTarget) {
	s.Targets = targets
	s.resolved = true
}

// Resolved reports whether any resolution has succeeded.
func (s *Session) Resolved() bool {
	return s.resolved
}

// FindTarget returns the target with the given identifier URI.
func (s *Session) FindTarget(uri string) (*aquery.ResolvedTarget, bool) {
	for i := range s.Targets {
		if s.Targets[i].URI == uri {
			return &s.Targets[i], true
		}
	}
	return nil, false
}

// FindByInputFile returns the first target listing fileURI as an input.
func (s *Session) FindByInputFile(fileURI string) (*aquery.ResolvedTarget, bool) {
	for i := range s.Targets {
		if s.Targets[i].HasInputFile(fileURI) {
			return &s.Targets[i], true
		}
	}
	return nil, false
}
