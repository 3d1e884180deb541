// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the per-workspace buildServer.json and the
// per-user server settings.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// FileName is the project config file looked up in the workspace root.
const FileName = "buildServer.json"

// DefaultBazelPath is used when the config does not name a binary.
const DefaultBazelPath = "bazel"

// BuildServer is the contents of <root>/buildServer.json.
//
// The first five fields are the standard BSP connection file keys and are
// only informational here. The rest drive resolution.
type BuildServer struct {
	Name       string   `json:"name"`
	Argv       []string `json:"argv"`
	Version    string   `json:"version"`
	BSPVersion string   `json:"bspVersion"`
	Languages  []string `json:"languages"`

	// Target is the top-level Bazel label whose dependency closure is
	// served, e.g. //App:App.
	Target string `json:"target" validate:"required,bazellabel"`

	// SDK is the Xcode SDK root substituted for the Bazel placeholder.
	SDK string `json:"sdk" validate:"required,abspath"`

	IndexStorePath    string `json:"indexStorePath" validate:"omitempty,abspath"`
	IndexDatabasePath string `json:"indexDatabasePath" validate:"omitempty,abspath"`

	// ExecutionRoot pins Bazel's execution root. When empty it is asked
	// from `bazel info execution_root`.
	ExecutionRoot string `json:"executionRoot,omitempty" validate:"omitempty,abspath"`

	// BazelPath is the build tool binary. Defaults to DefaultBazelPath.
	BazelPath string `json:"bazelPath,omitempty"`

	// AqueryArgs are appended to aquery and build invocations.
	AqueryArgs []string `json:"aqueryArgs" validate:"dive,required"`

	ExtraIncludes   []string `json:"extraIncludes" validate:"dive,required"`
	ExtraFrameworks []string `json:"extraFrameworks" validate:"dive,required"`

	// DefaultSettings are compiler arguments returned to the client for
	// files that belong to no target.
	DefaultSettings []string `json:"defaultSettings,omitempty"`

	// ShallowDepsets follows only one level of transitive depsets when
	// collecting input files.
	ShallowDepsets bool `json:"shallowDepsets,omitempty"`
}

// Load reads and validates <rootPath>/buildServer.json.
//
// Outputs:
//
//	*BuildServer - The validated config with defaults applied.
//	error - Wraps ErrConfig when the file is missing, malformed or invalid.
func Load(rootPath string) (*BuildServer, error) {
	path := filepath.Join(rootPath, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, configError(path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a buildServer.json document.
func Parse(data []byte) (*BuildServer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("file is empty")
	}

	var cfg BuildServer
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.BazelPath == "" {
		cfg.BazelPath = DefaultBazelPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags.
func (c *BuildServer) Validate() error {
	return validate.Struct(c)
}
