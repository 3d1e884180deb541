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

// State is the lifecycle state of a Dispatcher.
type State int

const (
	// StateUninitialized is the state before build/initialize succeeds.
	StateUninitialized State = iota

	// StateInitialized means requests are being served.
	StateInitialized

	// StateShuttingDown is entered on build/shutdown. Only build/exit is
	// served from here.
	StateShuttingDown

	// StateExited is entered on build/exit and ends the loop.
	StateExited
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"uninitialized", "initialized", "shutting_down", "exited"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}
