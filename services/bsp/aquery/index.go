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
	"fmt"
	"strings"
)

// Index provides id lookups over a Document.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent reads.
type Index struct {
	artifacts   map[uint32]Artifact
	depSets     map[uint32]DepSetOfFiles
	fragments   map[uint32]PathFragment
	targets     map[uint32]Target
	ruleClasses map[uint32]RuleClass
}

// NewIndex builds id maps for every table of doc. Duplicate ids within a
// table are rejected.
func NewIndex(doc *Document) (*Index, error) {
	idx := &Index{
		artifacts:   make(map[uint32]Artifact, len(doc.Artifacts)),
		depSets:     make(map[uint32]DepSetOfFiles, len(doc.DepSetOfFiles)),
		fragments:   make(map[uint32]PathFragment, len(doc.PathFragments)),
		targets:     make(map[uint32]Target, len(doc.Targets)),
		ruleClasses: make(map[uint32]RuleClass, len(doc.RuleClasses)),
	}

	for _, a := range doc.Artifacts {
		if _, dup := idx.artifacts[a.ID]; dup {
			return nil, duplicate("artifacts", a.ID)
		}
		idx.artifacts[a.ID] = a
	}
	for _, d := range doc.DepSetOfFiles {
		if _, dup := idx.depSets[d.ID]; dup {
			return nil, duplicate("depSetOfFiles", d.ID)
		}
		idx.depSets[d.ID] = d
	}
	for _, f := range doc.PathFragments {
		if _, dup := idx.fragments[f.ID]; dup {
			return nil, duplicate("pathFragments", f.ID)
		}
		idx.fragments[f.ID] = f
	}
	for _, t := range doc.Targets {
		if _, dup := idx.targets[t.ID]; dup {
			return nil, duplicate("targets", t.ID)
		}
		idx.targets[t.ID] = t
	}
	for _, r := range doc.RuleClasses {
		idx.ruleClasses[r.ID] = r
	}
	return idx, nil
}

func duplicate(table string, id uint32) error {
	return fmt.Errorf("%w: duplicate %s id %d", ErrResolution, table, id)
}

// Target returns the target with the given id.
func (idx *Index) Target(id uint32) (Target, error) {
	t, ok := idx.targets[id]
	if !ok {
		return Target{}, dangling("targets", id)
	}
	return t, nil
}

// RuleClassName returns the rule class name of t, or "" if the document
// carries no rule class table entry for it.
func (idx *Index) RuleClassName(t Target) string {
	return idx.ruleClasses[t.RuleClassID].Name
}

// Artifact returns the artifact with the given id.
func (idx *Index) Artifact(id uint32) (Artifact, error) {
	a, ok := idx.artifacts[id]
	if !ok {
		return Artifact{}, dangling("artifacts", id)
	}
	return a, nil
}

// ArtifactIDs flattens a depset into artifact ids.
//
// Description:
//
//	By default the full transitive closure is returned: the depset's
//	direct artifacts, then those of every depset reachable through
//	transitive links, each depset expanded once. With shallow set only
//	one level is followed: the depset's direct artifacts plus the direct
//	artifacts of the depsets it names; deeper links are ignored.
//
//	Ids are de-duplicated, keeping the first occurrence.
//
// Inputs:
//
//	depSetID - The depset to flatten.
//	shallow - Follow only one level of transitive links.
//
// Outputs:
//
//	[]uint32 - Artifact ids in discovery order.
//	error - *DanglingReferenceError if a depset id is unknown.
func (idx *Index) ArtifactIDs(depSetID uint32, shallow bool) ([]uint32, error) {
	root, ok := idx.depSets[depSetID]
	if !ok {
		return nil, dangling("depSetOfFiles", depSetID)
	}

	var out []uint32
	seen := make(map[uint32]struct{})
	add := func(ids []uint32) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	if shallow {
		add(root.DirectArtifactIDs)
		for _, tid := range root.TransitiveDepSetIDs {
			t, ok := idx.depSets[tid]
			if !ok {
				return nil, dangling("depSetOfFiles", tid)
			}
			add(t.DirectArtifactIDs)
		}
		return out, nil
	}

	visited := map[uint32]struct{}{root.ID: {}}
	stack := []DepSetOfFiles{root}
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		add(d.DirectArtifactIDs)

		// Push in reverse so children are expanded in declaration order.
		for i := len(d.TransitiveDepSetIDs) - 1; i >= 0; i-- {
			tid := d.TransitiveDepSetIDs[i]
			if _, done := visited[tid]; done {
				continue
			}
			t, ok := idx.depSets[tid]
			if !ok {
				return nil, dangling("depSetOfFiles", tid)
			}
			visited[tid] = struct{}{}
			stack = append(stack, t)
		}
	}
	return out, nil
}

// Path reconstructs the relative path of a fragment by walking parent links
// to the root and joining labels with "/".
func (idx *Index) Path(fragmentID uint32) (string, error) {
	var labels []string
	seen := make(map[uint32]struct{})

	id := fragmentID
	for {
		if _, loop := seen[id]; loop {
			return "", fmt.Errorf("%w: path fragment %d has a cyclic parent chain", ErrResolution, fragmentID)
		}
		seen[id] = struct{}{}

		f, ok := idx.fragments[id]
		if !ok {
			return "", dangling("pathFragments", id)
		}
		labels = append(labels, f.Label)
		if f.ParentID == nil {
			break
		}
		id = *f.ParentID
	}

	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, "/"), nil
}
