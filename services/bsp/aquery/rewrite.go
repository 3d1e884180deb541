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

import "strings"

// Markers recognized in Bazel's SwiftCompile arguments.
const (
	SDKRootPlaceholder = "__BAZEL_XCODE_SDKROOT__"

	bazelOutPrefix = "bazel-out/"
	externalPrefix = "external/"
)

// Rewriter turns a SwiftCompile argument list, which is only meaningful
// inside Bazel's sandbox and worker, into one the editor's compiler
// frontend can run from the workspace root.
//
// Thread Safety:
//
//	Rewriter has no mutable state; safe for concurrent use.
type Rewriter struct {
	// SDKRoot replaces the Xcode SDK placeholder.
	SDKRoot string

	// ExecutionRoot prefixes bazel-out/ and external/ paths.
	ExecutionRoot string
}

// rewriteRule inspects args[i] (and possibly args[i+1]). It reports how many
// tokens it consumed and what to emit for them; consumed == 0 means the rule
// does not apply.
type rewriteRule func(rw Rewriter, args []string, i int) (emit []string, consumed int)

// rewriteRules run in order; the first rule that consumes a token wins.
var rewriteRules = []rewriteRule{
	dropConstGatherProtocols,
	replaceSDKRoot,
	dropWorkerArgs,
	dropBatchMode,
	dropIndexStorePath,
	prefixBazelOut,
	prefixExternal,
}

// Rewrite applies the rewrite rules to args and returns a new slice. It is
// deterministic: the same input always yields the same output.
func (rw Rewriter) Rewrite(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); {
		matched := false
		for _, rule := range rewriteRules {
			emit, consumed := rule(rw, args, i)
			if consumed == 0 {
				continue
			}
			out = append(out, emit...)
			i += consumed
			matched = true
			break
		}
		if !matched {
			out = append(out, args[i])
			i++
		}
	}
	return out
}

// -Xfrontend -const-gather-protocols-file <path> points at a file that only
// exists inside the sandbox.
func dropConstGatherProtocols(_ Rewriter, args []string, i int) ([]string, int) {
	if !strings.Contains(args[i], "-Xfrontend") || i+1 >= len(args) {
		return nil, 0
	}
	next := args[i+1]
	if strings.Contains(next, "-const-gather-protocols-file") || strings.Contains(next, "const_protocols_to_gather.json") {
		return nil, 2
	}
	return nil, 0
}

func replaceSDKRoot(rw Rewriter, args []string, i int) ([]string, int) {
	if !strings.Contains(args[i], SDKRootPlaceholder) {
		return nil, 0
	}
	return []string{strings.ReplaceAll(args[i], SDKRootPlaceholder, rw.SDKRoot)}, 1
}

// The worker wrapper, its flags and the compiler driver name itself.
func dropWorkerArgs(_ Rewriter, args []string, i int) ([]string, int) {
	a := args[i]
	if strings.Contains(a, "-Xwrapped-swift") || strings.HasSuffix(a, "worker") || strings.HasPrefix(a, "swiftc") {
		return nil, 1
	}
	return nil, 0
}

// Batch mode cannot be combined with the -index-file flag SourceKit adds.
func dropBatchMode(_ Rewriter, args []string, i int) ([]string, int) {
	if strings.Contains(args[i], "-enable-batch-mode") {
		return nil, 1
	}
	return nil, 0
}

// SourceKit-LSP passes its own index store.
func dropIndexStorePath(_ Rewriter, args []string, i int) ([]string, int) {
	if !strings.Contains(args[i], "-index-store-path") || i+1 >= len(args) {
		return nil, 0
	}
	if strings.Contains(args[i+1], "indexstore") {
		return nil, 2
	}
	return nil, 0
}

func prefixBazelOut(rw Rewriter, args []string, i int) ([]string, int) {
	if !strings.Contains(args[i], bazelOutPrefix) {
		return nil, 0
	}
	return []string{strings.ReplaceAll(args[i], bazelOutPrefix, rw.ExecutionRoot+"/"+bazelOutPrefix)}, 1
}

func prefixExternal(rw Rewriter, args []string, i int) ([]string, int) {
	if !strings.Contains(args[i], externalPrefix) {
		return nil, 0
	}
	return []string{strings.ReplaceAll(args[i], externalPrefix, rw.ExecutionRoot+"/"+externalPrefix)}, 1
}
