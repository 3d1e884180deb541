// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol defines the Build Server Protocol messages exchanged with
// SourceKit-LSP, including its sourceKit data extensions.
package protocol

// Server identity reported in the initialize response.
const (
	ServerName    = "bazel-build-server"
	ServerVersion = "1.0.0"
	BSPVersion    = "2.0"
)

// DataKindSourceKit tags the SourceKit-specific data payloads.
const DataKindSourceKit = "sourceKit"

// LanguageIDs lists the languages advertised for compile and targets.
var LanguageIDs = []string{"c", "cpp", "objective-c", "objective-cpp", "swift"}

// =============================================================================
// COMMON
// =============================================================================

// TextDocumentIdentifier identifies a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// BuildTargetIdentifier identifies a build target by URI.
type BuildTargetIdentifier struct {
	URI string `json:"uri"`
}

// =============================================================================
// INITIALIZE
// =============================================================================

// InitializeBuildParams are sent by the client in build/initialize.
type InitializeBuildParams struct {
	DisplayName  string         `json:"displayName"`
	Version      string         `json:"version"`
	BSPVersion   string         `json:"bspVersion"`
	RootURI      string         `json:"rootUri"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	DataKind     string         `json:"dataKind,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// CompileProvider lists the languages the server can compile.
type CompileProvider struct {
	LanguageIDs []string `json:"languageIds"`
}

// BuildServerCapabilities advertises which BSP features are supported.
type BuildServerCapabilities struct {
	CompileProvider            *CompileProvider `json:"compileProvider,omitempty"`
	InverseSourcesProvider     bool             `json:"inverseSourcesProvider"`
	DependencySourcesProvider  bool             `json:"dependencySourcesProvider"`
	ResourcesProvider          bool             `json:"resourcesProvider"`
	OutputPathsProvider        bool             `json:"outputPathsProvider"`
	BuildTargetChangedProvider bool             `json:"buildTargetChangedProvider"`
	CanReload                  bool             `json:"canReload"`
}

// SourceKitInitializeBuildResponseData is the sourceKit extension of the
// initialize response.
type SourceKitInitializeBuildResponseData struct {
	IndexDatabasePath        string   `json:"indexDatabasePath,omitempty"`
	IndexStorePath           string   `json:"indexStorePath,omitempty"`
	OutputPathsProvider      bool     `json:"outputPathsProvider"`
	PrepareProvider          bool     `json:"prepareProvider"`
	SourceKitOptionsProvider bool     `json:"sourceKitOptionsProvider"`
	DefaultSettings          []string `json:"defaultSettings,omitempty"`
}

// InitializeBuildResult is the result of build/initialize.
type InitializeBuildResult struct {
	DisplayName  string                               `json:"displayName"`
	Version      string                               `json:"version"`
	BSPVersion   string                               `json:"bspVersion"`
	Capabilities BuildServerCapabilities              `json:"capabilities"`
	DataKind     string                               `json:"dataKind"`
	Data         SourceKitInitializeBuildResponseData `json:"data"`
}

// =============================================================================
// BUILD TARGETS
// =============================================================================

// BuildTargetCapabilities describes what can be done with a target.
type BuildTargetCapabilities struct {
	CanCompile bool `json:"canCompile"`
	CanTest    bool `json:"canTest"`
	CanRun     bool `json:"canRun"`
	CanDebug   bool `json:"canDebug"`
}

// Target tags.
const (
	TagLibrary     = "library"
	TagApplication = "application"
	TagTest        = "test"
)

// BuildTarget is one entry of workspace/buildTargets.
type BuildTarget struct {
	ID           BuildTargetIdentifier   `json:"id"`
	DisplayName  string                  `json:"displayName,omitempty"`
	Tags         []string                `json:"tags"`
	LanguageIDs  []string                `json:"languageIds"`
	Dependencies []BuildTargetIdentifier `json:"dependencies"`
	Capabilities BuildTargetCapabilities `json:"capabilities"`
}

// WorkspaceBuildTargetsResult is the result of workspace/buildTargets.
type WorkspaceBuildTargetsResult struct {
	Targets []BuildTarget `json:"targets"`
}

// =============================================================================
// SOURCES
// =============================================================================

// SourcesParams are sent with buildTarget/sources.
type SourcesParams struct {
	Targets []BuildTargetIdentifier `json:"targets"`
}

// SourceItemKindFile marks a source item as a single file.
const SourceItemKindFile = 1

// SourceKitSourceItemData is the sourceKit extension of a source item.
type SourceKitSourceItemData struct {
	Kind string `json:"kind"`
}

// SourceItem is one file of a target.
type SourceItem struct {
	URI       string                   `json:"uri"`
	Kind      int                      `json:"kind"`
	Generated bool                     `json:"generated"`
	DataKind  string                   `json:"dataKind,omitempty"`
	Data      *SourceKitSourceItemData `json:"data,omitempty"`
}

// SourcesItem groups the sources of one target.
type SourcesItem struct {
	Target  BuildTargetIdentifier `json:"target"`
	Sources []SourceItem          `json:"sources"`
	Roots   []string              `json:"roots,omitempty"`
}

// SourcesResult is the result of buildTarget/sources.
type SourcesResult struct {
	Items []SourcesItem `json:"items"`
}

// =============================================================================
// SOURCEKIT OPTIONS
// =============================================================================

// TextDocumentSourceKitOptionsParams are sent with
// textDocument/sourceKitOptions.
type TextDocumentSourceKitOptionsParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Target       BuildTargetIdentifier  `json:"target"`
	Language     string                 `json:"language,omitempty"`
}

// TextDocumentSourceKitOptionsResult carries the compiler invocation for a
// file.
type TextDocumentSourceKitOptionsResult struct {
	CompilerArguments []string `json:"compilerArguments"`
	WorkingDirectory  string   `json:"workingDirectory,omitempty"`
}

// RegisterForChangesParams are sent with textDocument/registerForChanges.
type RegisterForChangesParams struct {
	URI    string `json:"uri"`
	Action string `json:"action"`
}

// SourceKitOptions are the compiler options pushed for a file.
type SourceKitOptions struct {
	Options          []string `json:"options"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
}

// SourceKitOptionsChangedParams are pushed with
// build/sourceKitOptionsChanged.
type SourceKitOptionsChangedParams struct {
	URI            string           `json:"uri"`
	UpdatedOptions SourceKitOptions `json:"updatedOptions"`
}

// =============================================================================
// PREPARE / WATCHED FILES
// =============================================================================

// PrepareParams are sent with buildTarget/prepare.
type PrepareParams struct {
	Targets  []BuildTargetIdentifier `json:"targets"`
	OriginID string                  `json:"originId,omitempty"`
}

// FileEvent is one entry of workspace/didChangeWatchedFiles.
type FileEvent struct {
	URI  string `json:"uri"`
	Type int    `json:"type"`
}

// DidChangeWatchedFilesParams are sent with workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}
