// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
)

func (a *app) resolveCommand() *cobra.Command {
	var (
		root          string
		fromFile      string
		executionRoot string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the workspace targets once and print them as JSON",
		Long: `resolve runs the same action graph query the server runs for
workspace/buildTargets and prints the resolved targets. With --from-file a
saved 'bazel aquery --output=jsonproto' document is used instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			logger := a.logger.Slog()
			client := bazel.NewClient(a.runner, bazel.ClientConfig{
				Binary:    cfg.BazelPath,
				Workspace: root,
				ExtraArgs: cfg.AqueryArgs,
			}, logger)

			if executionRoot == "" {
				executionRoot = cfg.ExecutionRoot
			}
			if executionRoot == "" {
				if executionRoot, err = client.ExecutionRoot(cmd.Context()); err != nil {
					return err
				}
			}

			var raw []byte
			if fromFile != "" {
				raw, err = os.ReadFile(fromFile)
			} else {
				raw, err = client.Aquery(cmd.Context(), cfg.Target)
			}
			if err != nil {
				return err
			}

			resolver := aquery.NewResolver(aquery.Options{
				RootPath:        root,
				ExecutionRoot:   executionRoot,
				SDKRoot:         cfg.SDK,
				ExtraIncludes:   cfg.ExtraIncludes,
				ExtraFrameworks: cfg.ExtraFrameworks,
				ShallowDepsets:  cfg.ShallowDepsets,
			}, logger)
			targets, err := resolver.Resolve(cmd.Context(), raw)
			if err != nil {
				return err
			}
			logger.Debug("resolve finished", slog.Int("targets", len(targets)))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(targets); err != nil {
				return fmt.Errorf("write targets: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "workspace root containing buildServer.json")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "read a saved jsonproto aquery document instead of running bazel")
	cmd.Flags().StringVar(&executionRoot, "execution-root", "", "override the execution root")
	return cmd
}
