// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aquery

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// ACTION GRAPH DOCUMENT
// =============================================================================

// Document is the action graph printed by `bazel aquery --output=jsonproto`.
// Entities reference each other by numeric id.
type Document struct {
	Artifacts     []Artifact      `json:"artifacts"`
	Actions       []Action        `json:"actions"`
	Targets       []Target        `json:"targets"`
	RuleClasses   []RuleClass     `json:"ruleClasses"`
	DepSetOfFiles []DepSetOfFiles `json:"depSetOfFiles"`
	PathFragments []PathFragment  `json:"pathFragments"`
}

// Artifact is a file produced or consumed by an action.
type Artifact struct {
	ID             uint32 `json:"id"`
	PathFragmentID uint32 `json:"pathFragmentId"`
	IsTreeArtifact bool   `json:"isTreeArtifact,omitempty"`
}

// Action is one command Bazel would run.
type Action struct {
	TargetID             uint32                `json:"targetId"`
	ActionKey            string                `json:"actionKey"`
	Mnemonic             string                `json:"mnemonic"`
	ConfigurationID      uint32                `json:"configurationId"`
	Arguments            []string              `json:"arguments"`
	EnvironmentVariables []EnvironmentVariable `json:"environmentVariables"`
	InputDepSetIDs       []uint32              `json:"inputDepSetIds"`
}

// EnvironmentVariable is a key/value pair set for an action.
type EnvironmentVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Target is a Bazel target that owns actions.
type Target struct {
	ID          uint32 `json:"id"`
	Label       string `json:"label"`
	RuleClassID uint32 `json:"ruleClassId"`
}

// RuleClass names the rule that declared a target (swift_library, ...).
type RuleClass struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// DepSetOfFiles is a nested set of artifacts.
type DepSetOfFiles struct {
	ID                  uint32   `json:"id"`
	DirectArtifactIDs   []uint32 `json:"directArtifactIds,omitempty"`
	TransitiveDepSetIDs []uint32 `json:"transitiveDepSetIds,omitempty"`
}

// PathFragment is one component of a path. Following ParentID to the root
// and joining labels yields the full relative path.
type PathFragment struct {
	ID       uint32  `json:"id"`
	Label    string  `json:"label"`
	ParentID *uint32 `json:"parentId,omitempty"`
}

// ParseDocument decodes aquery jsonproto output.
//
// Description:
//
//	Bazel prints an empty object when the query matches nothing; that is
//	a valid, empty Document. Empty or whitespace-only input is not.
//
// Inputs:
//
//	raw - The bytes printed by bazel aquery.
//
// Outputs:
//
//	*Document - The decoded document.
//	error - Wraps ErrInvalidDocument on failure.
func ParseDocument(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty aquery output", ErrInvalidDocument)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}
