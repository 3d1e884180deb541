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
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/protocol"
)

// DefaultExtension is the source extension kept by default.
const DefaultExtension = ".swift"

// =============================================================================
// RESOLVED TARGET
// =============================================================================

// ResolvedTarget is a Bazel target flattened into what the editor needs:
// its source files and one ready-to-run compiler argument list.
//
// (URI, ID) is the identity key. Values are created fresh by each
// resolution and never modified afterwards.
type ResolvedTarget struct {
	// ID is the target id inside the aquery document it came from.
	ID uint32 `json:"id"`

	// URI is file://<root>/<label without leading //>/<id>.
	URI string `json:"uri"`

	// Label is the Bazel label, e.g. //Sources/Components:Components.
	Label string `json:"label"`

	// Kind is the rule class name, e.g. swift_library. May be empty.
	Kind string `json:"kind,omitempty"`

	// InputFiles are file:// URIs of the target's sources, ordered and
	// unique.
	InputFiles []string `json:"inputFiles"`

	// CompilerArguments are the rewritten compiler arguments.
	CompilerArguments []string `json:"compilerArguments"`
}

// HasInputFile reports whether uri is one of the target's input files.
func (t *ResolvedTarget) HasInputFile(uri string) bool {
	for _, f := range t.InputFiles {
		if f == uri {
			return true
		}
	}
	return false
}

type targetKey struct {
	uri string
	id  uint32
}

// =============================================================================
// RESOLVER
// =============================================================================

// Options configure a Resolver.
type Options struct {
	// RootPath is the absolute workspace root.
	RootPath string

	// ExecutionRoot is Bazel's execution root.
	ExecutionRoot string

	// SDKRoot replaces the Xcode SDK placeholder in arguments.
	SDKRoot string

	// ExtraIncludes are appended to every target as -I<path>.
	ExtraIncludes []string

	// ExtraFrameworks are appended to every target as -F<path>, after the
	// includes.
	ExtraFrameworks []string

	// Extension selects the input files to keep. Defaults to ".swift".
	Extension string

	// ShallowDepsets follows only one level of transitive depsets.
	ShallowDepsets bool
}

// Resolver flattens aquery documents into ResolvedTargets.
//
// Thread Safety:
//
//	Stateless apart from its options; safe for concurrent use.
type Resolver struct {
	opts     Options
	rewriter Rewriter
	logger   *slog.Logger
}

// NewResolver creates a Resolver.
//
// Inputs:
//
//	opts - Resolution options. RootPath and ExecutionRoot are cleaned.
//	logger - Logger for resolution summaries. Nil uses slog.Default().
//
// Outputs:
//
//	*Resolver - The resolver.
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	opts.RootPath = filepath.Clean(opts.RootPath)
	opts.ExecutionRoot = strings.TrimRight(opts.ExecutionRoot, "/")
	return &Resolver{
		opts:     opts,
		rewriter: Rewriter{SDKRoot: opts.SDKRoot, ExecutionRoot: opts.ExecutionRoot},
		logger:   logger,
	}
}

// Resolve parses raw aquery output and resolves it.
func (r *Resolver) Resolve(ctx context.Context, raw []byte) ([]ResolvedTarget, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return r.ResolveDocument(ctx, doc)
}

// ResolveDocument flattens doc into deduplicated targets.
//
// Description:
//
//	For every action: flatten its input depsets into artifacts, rebuild
//	each artifact's path, keep files with the configured extension as
//	file:// URIs under the root, rewrite the arguments, append the extra
//	include and framework flags, and attach the owning target.
//
//	Actions that map to the same (URI, ID) are merged: input files are
//	unioned in first-seen order and the arguments of the last action win.
//	Targets are returned in first-seen order.
//
// Inputs:
//
//	ctx - Context for tracing.
//	doc - The parsed document.
//
// Outputs:
//
//	[]ResolvedTarget - The resolved targets.
//	error - Wraps ErrResolution if any referenced id is missing. No partial
//	        result is returned.
func (r *Resolver) ResolveDocument(ctx context.Context, doc *Document) (targets []ResolvedTarget, err error) {
	ctx, span := startResolveSpan(ctx, len(doc.Actions))
	defer span.End()
	start := time.Now()
	defer func() {
		setResolveSpanResult(span, len(targets), err)
		recordResolveMetrics(ctx, time.Since(start), len(targets), err == nil)
	}()

	idx, err := NewIndex(doc)
	if err != nil {
		return nil, err
	}

	order := make([]targetKey, 0, len(doc.Actions))
	merged := make(map[targetKey]*ResolvedTarget, len(doc.Actions))

	for _, action := range doc.Actions {
		t, err := r.resolveAction(idx, action)
		if err != nil {
			return nil, err
		}

		key := targetKey{uri: t.URI, id: t.ID}
		existing, ok := merged[key]
		if !ok {
			order = append(order, key)
			merged[key] = t
			continue
		}
		existing.InputFiles = unionStrings(existing.InputFiles, t.InputFiles)
		existing.CompilerArguments = t.CompilerArguments
	}

	targets = make([]ResolvedTarget, 0, len(order))
	for _, key := range order {
		targets = append(targets, *merged[key])
	}

	r.logger.Info("resolved action graph",
		slog.Int("actions", len(doc.Actions)),
		slog.Int("targets", len(targets)),
		slog.Bool("shallow_depsets", r.opts.ShallowDepsets),
		slog.Duration("duration", time.Since(start)),
	)
	return targets, nil
}

func (r *Resolver) resolveAction(idx *Index, action Action) (*ResolvedTarget, error) {
	inputs, err := r.inputFiles(idx, action)
	if err != nil {
		return nil, err
	}

	owner, err := idx.Target(action.TargetID)
	if err != nil {
		return nil, err
	}

	args := r.rewriter.Rewrite(action.Arguments)
	for _, inc := range r.opts.ExtraIncludes {
		args = append(args, "-I"+inc)
	}
	for _, fw := range r.opts.ExtraFrameworks {
		args = append(args, "-F"+fw)
	}

	return &ResolvedTarget{
		ID:                owner.ID,
		URI:               TargetURI(r.opts.RootPath, owner.Label, owner.ID),
		Label:             owner.Label,
		Kind:              idx.RuleClassName(owner),
		InputFiles:        inputs,
		CompilerArguments: args,
	}, nil
}

func (r *Resolver) inputFiles(idx *Index, action Action) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})

	for _, depSetID := range action.InputDepSetIDs {
		artifactIDs, err := idx.ArtifactIDs(depSetID, r.opts.ShallowDepsets)
		if err != nil {
			return nil, err
		}
		for _, artifactID := range artifactIDs {
			artifact, err := idx.Artifact(artifactID)
			if err != nil {
				return nil, err
			}
			rel, err := idx.Path(artifact.PathFragmentID)
			if err != nil {
				return nil, err
			}
			if path.Ext(rel) != r.opts.Extension {
				continue
			}
			uri := protocol.FileURI(filepath.Join(r.opts.RootPath, filepath.FromSlash(rel)))
			if _, dup := seen[uri]; dup {
				continue
			}
			seen[uri] = struct{}{}
			files = append(files, uri)
		}
	}
	return files, nil
}

// TargetURI builds the identifier URI of a target: the file URI of
// <root>/<label without leading //>/<id>.
func TargetURI(rootPath, label string, id uint32) string {
	rel := strings.TrimPrefix(label, "//")
	return protocol.FileURI(path.Join(filepath.ToSlash(rootPath), rel, strconv.FormatUint(uint64(id), 10)))
}

// unionStrings appends the elements of b missing from a, keeping order.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	out := append([]string(nil), a...)
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
