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

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/config"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/protocol"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/telemetry"
)

// =============================================================================
// LIFECYCLE
// =============================================================================

// initialize builds the session from build/initialize params.
func (d *Dispatcher) initialize(ctx context.Context, msg *jsonrpc.Message) (*protocol.InitializeBuildResult, error) {
	var params protocol.InitializeBuildParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}

	root, err := protocol.PathFromURI(params.RootURI)
	if err != nil {
		return nil, fmt.Errorf("%w: rootUri: %w", config.ErrConfig, err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	client := bazel.NewClient(d.runner, bazel.ClientConfig{
		Binary:    cfg.BazelPath,
		Workspace: root,
		ExtraArgs: cfg.AqueryArgs,
	}, d.logger)

	execRoot := cfg.ExecutionRoot
	if execRoot == "" {
		execRoot, err = client.ExecutionRoot(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: determine execution root: %w", config.ErrConfig, err)
		}
		if !filepath.IsAbs(execRoot) {
			return nil, fmt.Errorf("%w: execution root %q is not absolute", config.ErrConfig, execRoot)
		}
	}

	d.bazel = client
	d.resolver = aquery.NewResolver(aquery.Options{
		RootPath:        root,
		ExecutionRoot:   execRoot,
		SDKRoot:         cfg.SDK,
		ExtraIncludes:   cfg.ExtraIncludes,
		ExtraFrameworks: cfg.ExtraFrameworks,
		ShallowDepsets:  cfg.ShallowDepsets,
	}, d.logger)
	d.session = &Session{
		ID:            d.sessionID,
		Config:        cfg,
		RootPath:      root,
		ExecutionRoot: execRoot,
	}

	telemetry.LoggerWithTrace(ctx, d.logger).Info("initialize",
		slog.String("client", params.DisplayName),
		slog.String("client_version", params.Version),
		slog.String("root", root),
	)
	return initializeResult(cfg), nil
}

func initializeResult(cfg *config.BuildServer) *protocol.InitializeBuildResult {
	return &protocol.InitializeBuildResult{
		DisplayName: protocol.ServerName,
		Version:     protocol.ServerVersion,
		BSPVersion:  protocol.BSPVersion,
		Capabilities: protocol.BuildServerCapabilities{
			CompileProvider:            &protocol.CompileProvider{LanguageIDs: protocol.LanguageIDs},
			BuildTargetChangedProvider: true,
		},
		DataKind: protocol.DataKindSourceKit,
		Data: protocol.SourceKitInitializeBuildResponseData{
			IndexDatabasePath:        cfg.IndexDatabasePath,
			IndexStorePath:           cfg.IndexStorePath,
			PrepareProvider:          true,
			SourceKitOptionsProvider: true,
			DefaultSettings:          cfg.DefaultSettings,
		},
	}
}

func (d *Dispatcher) handleReinitialize(_ context.Context, _ *jsonrpc.Message) (any, error) {
	return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "server is already initialized")
}

func (d *Dispatcher) handleShutdown(_ context.Context, _ *jsonrpc.Message) (any, error) {
	d.state = StateShuttingDown
	return nil, nil
}

func (d *Dispatcher) handleExit(_ context.Context, _ *jsonrpc.Message) (any, error) {
	d.state = StateExited
	return nil, nil
}

func (d *Dispatcher) handleNoop(_ context.Context, _ *jsonrpc.Message) (any, error) {
	return nil, nil
}

func (d *Dispatcher) handleDidChangeWatchedFiles(ctx context.Context, msg *jsonrpc.Message) (any, error) {
	var params protocol.DidChangeWatchedFilesParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	telemetry.LoggerWithTrace(ctx, d.logger).Debug("watched files changed", slog.Int("changes", len(params.Changes)))
	return nil, nil
}

// =============================================================================
// TARGETS
// =============================================================================

// resolve queries the action graph and replaces the session targets. On
// failure the previous targets are kept.
func (d *Dispatcher) resolve(ctx context.Context) ([]aquery.ResolvedTarget, error) {
	raw, err := d.bazel.Aquery(ctx, d.session.Config.Target)
	if err != nil {
		return nil, err
	}
	targets, err := d.resolver.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	d.session.ReplaceTargets(targets)
	return targets, nil
}

func (d *Dispatcher) handleBuildTargets(ctx context.Context, _ *jsonrpc.Message) (any, error) {
	targets, err := d.resolve(ctx)
	if err != nil {
		return nil, err
	}

	result := protocol.WorkspaceBuildTargetsResult{Targets: make([]protocol.BuildTarget, 0, len(targets))}
	for _, t := range targets {
		result.Targets = append(result.Targets, protocol.BuildTarget{
			ID:           protocol.BuildTargetIdentifier{URI: t.URI},
			DisplayName:  t.Label,
			Tags:         tagsForKind(t.Kind),
			LanguageIDs:  protocol.LanguageIDs,
			Dependencies: []protocol.BuildTargetIdentifier{},
			Capabilities: protocol.BuildTargetCapabilities{CanCompile: true, CanTest: true},
		})
	}
	return result, nil
}

// tagsForKind derives BSP target tags from a rule class name.
func tagsForKind(kind string) []string {
	switch {
	case strings.HasSuffix(kind, "_test"):
		return []string{protocol.TagTest}
	case strings.HasSuffix(kind, "_binary"), strings.HasSuffix(kind, "_application"):
		return []string{protocol.TagApplication}
	default:
		return []string{protocol.TagLibrary}
	}
}

// handleSources returns items for the known targets and skips unknown ones.
// The request fails with target not found only when none is known.
func (d *Dispatcher) handleSources(ctx context.Context, msg *jsonrpc.Message) (any, error) {
	var params protocol.SourcesParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}

	result := protocol.SourcesResult{Items: make([]protocol.SourcesItem, 0, len(params.Targets))}
	var missing []string
	for _, id := range params.Targets {
		t, ok := d.session.FindTarget(id.URI)
		if !ok {
			missing = append(missing, id.URI)
			continue
		}

		sources := make([]protocol.SourceItem, 0, len(t.InputFiles))
		for _, uri := range t.InputFiles {
			sources = append(sources, protocol.SourceItem{
				URI:       uri,
				Kind:      protocol.SourceItemKindFile,
				Generated: false,
				DataKind:  protocol.DataKindSourceKit,
				Data:      &protocol.SourceKitSourceItemData{Kind: "source"},
			})
		}
		result.Items = append(result.Items, protocol.SourcesItem{Target: id, Sources: sources})
	}

	if len(missing) > 0 {
		if len(result.Items) == 0 {
			return nil, targetNotFound(missing[0])
		}
		telemetry.LoggerWithTrace(ctx, d.logger).Warn("skipping unknown targets in sources request",
			slog.Any("targets", missing),
		)
	}
	return result, nil
}

// =============================================================================
// COMPILER OPTIONS
// =============================================================================

func (d *Dispatcher) handleSourceKitOptions(_ context.Context, msg *jsonrpc.Message) (any, error) {
	var params protocol.TextDocumentSourceKitOptionsParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}

	t, ok := d.session.FindTarget(params.Target.URI)
	if !ok {
		t, ok = d.session.FindByInputFile(params.TextDocument.URI)
	}
	if !ok {
		return nil, targetNotFound(params.TextDocument.URI)
	}

	return protocol.TextDocumentSourceKitOptionsResult{
		CompilerArguments: t.CompilerArguments,
		WorkingDirectory:  d.session.RootPath,
	}, nil
}

// handleRegisterForChanges serves the legacy push model: the options for
// the file are sent as a notification rather than a reply.
func (d *Dispatcher) handleRegisterForChanges(ctx context.Context, msg *jsonrpc.Message) (any, error) {
	var params protocol.RegisterForChangesParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	logger := telemetry.LoggerWithTrace(ctx, d.logger)

	if !d.session.Resolved() {
		if _, err := d.resolve(ctx); err != nil {
			logger.Error("resolution for registerForChanges failed", slog.String("error", err.Error()))
		}
	}

	options := protocol.SourceKitOptions{Options: []string{}, WorkingDirectory: d.session.RootPath}
	if t, ok := d.session.FindByInputFile(params.URI); ok {
		options.Options = t.CompilerArguments
	} else {
		logger.Warn("no target owns file", slog.String("uri", params.URI))
	}

	err := d.conn.Notify(NotificationSourceKitOptionsChanged, protocol.SourceKitOptionsChangedParams{
		URI:            params.URI,
		UpdatedOptions: options,
	})
	if err != nil {
		return nil, fmt.Errorf("notify %s: %w", NotificationSourceKitOptionsChanged, err)
	}
	return nil, nil
}

// =============================================================================
// PREPARE
// =============================================================================

// handlePrepare builds the configured target. The reply is null whether
// or not the build succeeds.
func (d *Dispatcher) handlePrepare(ctx context.Context, msg *jsonrpc.Message) (any, error) {
	var params protocol.PrepareParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	logger := telemetry.LoggerWithTrace(ctx, d.logger)

	if err := d.bazel.Build(ctx, d.session.Config.Target); err != nil {
		logger.Error("prepare build failed",
			slog.String("target", d.session.Config.Target),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	logger.Info("prepare build finished",
		slog.String("target", d.session.Config.Target),
		slog.Int("requested_targets", len(params.Targets)),
	)
	return nil, nil
}
