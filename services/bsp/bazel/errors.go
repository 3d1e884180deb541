// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bazel

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxStderrInError bounds how much stderr is carried in a SubprocessError.
const maxStderrInError = 4096

// Sentinel errors for build tool invocations.
var (
	// ErrSubprocess indicates the build tool failed or produced unusable
	// output.
	ErrSubprocess = errors.New("build tool subprocess failed")

	// ErrNotInstalled indicates the build tool binary was not found.
	ErrNotInstalled = errors.New("build tool not installed")
)

// SubprocessError describes a failed build tool invocation.
type SubprocessError struct {
	// Argv is the command line that was run.
	Argv []string

	// ExitCode is the process exit code, or -1 if it never ran.
	ExitCode int

	// Stderr is the tail of the process stderr.
	Stderr string

	// Reason summarizes the failure.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *SubprocessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q %s", ErrSubprocess, strings.Join(e.Argv, " "), e.Reason)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr: %s", e.Stderr)
	}
	return b.String()
}

// Unwrap returns ErrSubprocess and the underlying error.
func (e *SubprocessError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSubprocess, e.Err}
	}
	return []error{ErrSubprocess}
}

// tail keeps the last maxStderrInError bytes of b, cut on a rune boundary.
func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxStderrInError {
		return s
	}
	start := len(s) - maxStderrInError
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
