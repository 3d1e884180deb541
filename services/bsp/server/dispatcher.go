// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server implements the build server lifecycle: the initialize
// handshake, method routing, and the session state shared by handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/aquery"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/jsonrpc"
	"github.com/AleutianAI/sourcekit-bsp/services/bsp/telemetry"
)

// Options configure a Dispatcher.
type Options struct {
	// Runner executes build tool commands. Defaults to bazel.ExecRunner{}.
	Runner bazel.Runner

	// Logger receives all server logs. Defaults to slog.Default().
	Logger *slog.Logger

	// SessionID tags logs and spans. Defaults to a random UUID.
	SessionID string
}

// Dispatcher reads messages from a connection and routes them to handlers
// one at a time.
//
// Description:
//
//	The first message must be build/initialize. After that each message is
//	handled to completion, build tool subprocesses included, before the
//	next one is read. Requests get exactly one reply carrying their id;
//	notifications get none.
//
// Thread Safety:
//
//	Not safe for concurrent use. Run owns the connection and the session.
type Dispatcher struct {
	conn      *jsonrpc.Conn
	runner    bazel.Runner
	logger    *slog.Logger
	sessionID string

	state    State
	session  *Session
	bazel    *bazel.Client
	resolver *aquery.Resolver
}

// NewDispatcher creates a Dispatcher serving conn.
func NewDispatcher(conn *jsonrpc.Conn, opts Options) *Dispatcher {
	if opts.Runner == nil {
		opts.Runner = bazel.ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Dispatcher{
		conn:      conn,
		runner:    opts.Runner,
		logger:    opts.Logger.With(slog.String("session_id", opts.SessionID)),
		sessionID: opts.SessionID,
		state:     StateUninitialized,
	}
}

// State returns the lifecycle state.
func (d *Dispatcher) State() State {
	return d.state
}

// Session returns the session, or nil before initialize.
func (d *Dispatcher) Session() *Session {
	return d.session
}

// Initialize performs the handshake on the first message.
//
// Description:
//
//	Reads one message, which must be a build/initialize request. The
//	workspace root comes from rootUri, the project config from
//	<root>/buildServer.json, and the execution root from the config or
//	`bazel info execution_root`. On success the result is sent and the
//	dispatcher moves to StateInitialized.
//
// Outputs:
//
//	error - Any failure. The session cannot continue. When the offending
//	        message carried an id an error reply has already been sent.
func (d *Dispatcher) Initialize(ctx context.Context) error {
	if d.state != StateUninitialized {
		return fmt.Errorf("%w: already initialized", ErrProtocol)
	}

	msg, err := d.conn.Read()
	if err != nil {
		if errors.Is(err, jsonrpc.ErrParse) {
			return fmt.Errorf("%w: first message: %w", ErrProtocol, err)
		}
		return fmt.Errorf("read initialize request: %w", err)
	}

	if ParseMethod(msg.Method) != MethodInitialize || msg.IsNotification() {
		err := fmt.Errorf("%w: first message must be a build/initialize request, got %q", ErrProtocol, msg.Method)
		d.logger.Error("rejecting first message", slog.String("method", msg.Method), slog.String("error", err.Error()))
		if !msg.IsNotification() {
			_ = d.conn.ReplyError(msg.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "expected build/initialize, got %s", msg.Method))
		}
		return err
	}

	ctx, span := startDispatchSpan(ctx, d.sessionID, msg.Method, true)
	defer span.End()
	start := time.Now()

	result, err := d.initialize(ctx, msg)
	setDispatchSpanResult(span, err)
	recordRequestMetrics(ctx, msg.Method, time.Since(start), err == nil)
	if err != nil {
		telemetry.LoggerWithTrace(ctx, d.logger).Error("initialize failed", slog.String("error", err.Error()))
		_ = d.conn.ReplyError(msg.ID, toResponseError(err))
		return fmt.Errorf("initialize: %w", err)
	}

	if err := d.conn.Reply(msg.ID, result); err != nil {
		return fmt.Errorf("reply to initialize: %w", err)
	}
	d.state = StateInitialized
	return nil
}

// Run serves the connection until build/exit or end of stream.
//
// Description:
//
//	Calls Initialize if needed, then handles messages in order. Ctx is
//	checked between messages and passed to build tool subprocesses.
//
// Outputs:
//
//	error - Nil after build/exit or when the client closes the stream.
//	        ErrUnknownMethod or ErrProtocol for messages that end the
//	        session, transport errors, and initialize failures.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.state == StateUninitialized {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
		d.logger.Info("session initialized",
			slog.String("root", d.session.RootPath),
			slog.String("execution_root", d.session.ExecutionRoot),
			slog.String("target", d.session.Config.Target),
		)
	}

	for d.state != StateExited {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := d.conn.Read()
		switch {
		case errors.Is(err, jsonrpc.ErrEndOfStream):
			d.logger.Info("client closed the stream", slog.String("state", d.state.String()))
			return nil
		case errors.Is(err, jsonrpc.ErrParse):
			d.logger.Error("undecodable message", slog.String("error", err.Error()))
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		case err != nil:
			return fmt.Errorf("read message: %w", err)
		}

		if err := d.dispatch(ctx, msg); err != nil {
			return err
		}
	}

	d.logger.Info("session exited")
	return nil
}

// handlerFunc handles one message. A nil result is sent as null.
type handlerFunc func(d *Dispatcher, ctx context.Context, msg *jsonrpc.Message) (any, error)

var handlers = map[Method]handlerFunc{
	MethodInitialize:                (*Dispatcher).handleReinitialize,
	MethodInitialized:               (*Dispatcher).handleNoop,
	MethodBuildTargets:              (*Dispatcher).handleBuildTargets,
	MethodSources:                   (*Dispatcher).handleSources,
	MethodSourceKitOptions:          (*Dispatcher).handleSourceKitOptions,
	MethodRegisterForChanges:        (*Dispatcher).handleRegisterForChanges,
	MethodPrepare:                   (*Dispatcher).handlePrepare,
	MethodWaitForBuildSystemUpdates: (*Dispatcher).handleNoop,
	MethodDidChangeWatchedFiles:     (*Dispatcher).handleDidChangeWatchedFiles,
	MethodDidChangeBuildTarget:      (*Dispatcher).handleNoop,
	MethodShowMessage:               (*Dispatcher).handleNoop,
	MethodShutdown:                  (*Dispatcher).handleShutdown,
	MethodExit:                      (*Dispatcher).handleExit,
}

// dispatch routes one message and sends its reply. A returned error ends
// the session.
func (d *Dispatcher) dispatch(ctx context.Context, msg *jsonrpc.Message) error {
	method := ParseMethod(msg.Method)
	isRequest := !msg.IsNotification()

	ctx, span := startDispatchSpan(ctx, d.sessionID, msg.Method, isRequest)
	defer span.End()
	start := time.Now()
	logger := telemetry.LoggerWithTrace(ctx, d.logger).With(slog.String("method", msg.Method))

	if method == MethodUnknown {
		err := fmt.Errorf("%w: %q", ErrUnknownMethod, msg.Method)
		logger.Error("unknown method, ending session", slog.String("id", string(msg.ID)))
		setDispatchSpanResult(span, err)
		recordRequestMetrics(ctx, "unknown", time.Since(start), false)
		return err
	}

	if d.state == StateShuttingDown && method != MethodExit {
		if !isRequest {
			logger.Warn("dropping notification after shutdown")
			return nil
		}
		logger.Warn("rejecting request after shutdown")
		return d.conn.ReplyError(msg.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "server is shutting down"))
	}

	logger.Debug("handling message", slog.Bool("request", isRequest))
	result, err := handlers[method](d, ctx, msg)
	setDispatchSpanResult(span, err)
	recordRequestMetrics(ctx, msg.Method, time.Since(start), err == nil)

	if err != nil {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	if !isRequest {
		return nil
	}

	if err != nil {
		if werr := d.conn.ReplyError(msg.ID, toResponseError(err)); werr != nil {
			return fmt.Errorf("reply to %s: %w", msg.Method, werr)
		}
		return nil
	}
	if werr := d.conn.Reply(msg.ID, result); werr != nil {
		return fmt.Errorf("reply to %s: %w", msg.Method, werr)
	}
	return nil
}

