// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sourcekit-bsp is a Build Server Protocol server that serves
// Bazel compiler arguments to SourceKit-LSP over stdin/stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/AleutianAI/sourcekit-bsp/services/bsp/bazel"
)

func main() {
	os.Exit(execute(newApp(os.Stdin, os.Stdout, os.Stderr, bazel.ExecRunner{}), os.Args[1:]))
}

// panicError carries a recovered panic out of a goroutine.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// execute runs the command line and returns the process exit code.
// Panics are logged with their stack and reported as exit code 1.
func execute(a *app, args []string) (code int) {
	defer a.close()

	defer func() {
		if r := recover(); r != nil {
			a.reportPanic(&panicError{value: r, stack: debug.Stack()})
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var perr *panicError
		if errors.As(err, &perr) {
			a.reportPanic(perr)
			return 1
		}
		a.reportError(err)
		return 1
	}
	return 0
}
