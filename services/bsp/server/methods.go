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

// =============================================================================
// METHODS
// =============================================================================

// Method is a BSP method understood by the dispatcher.
type Method int

const (
	// MethodUnknown is any method not listed below. It ends the session.
	MethodUnknown Method = iota

	MethodInitialize
	MethodInitialized
	MethodBuildTargets
	MethodSources
	MethodSourceKitOptions
	MethodRegisterForChanges
	MethodPrepare
	MethodWaitForBuildSystemUpdates
	MethodDidChangeWatchedFiles
	MethodDidChangeBuildTarget
	MethodShowMessage
	MethodShutdown
	MethodExit
)

// NotificationSourceKitOptionsChanged is pushed after registerForChanges.
const NotificationSourceKitOptionsChanged = "build/sourceKitOptionsChanged"

var methodNames = map[Method]string{
	MethodInitialize:                "build/initialize",
	MethodInitialized:               "build/initialized",
	MethodBuildTargets:              "workspace/buildTargets",
	MethodSources:                   "buildTarget/sources",
	MethodSourceKitOptions:          "textDocument/sourceKitOptions",
	MethodRegisterForChanges:        "textDocument/registerForChanges",
	MethodPrepare:                   "buildTarget/prepare",
	MethodWaitForBuildSystemUpdates: "workspace/waitForBuildSystemUpdates",
	MethodDidChangeWatchedFiles:     "workspace/didChangeWatchedFiles",
	MethodDidChangeBuildTarget:      "buildTarget/didChange",
	MethodShowMessage:               "window/showMessage",
	MethodShutdown:                  "build/shutdown",
	MethodExit:                      "build/exit",
}

var methodsByName = func() map[string]Method {
	m := make(map[string]Method, len(methodNames))
	for method, name := range methodNames {
		m[name] = method
	}
	return m
}()

// ParseMethod maps a wire method name to a Method. Unrecognized names map
// to MethodUnknown.
func ParseMethod(name string) Method {
	return methodsByName[name]
}

// String returns the wire name, or "unknown".
func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}
