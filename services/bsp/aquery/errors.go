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
	"errors"
	"fmt"
)

// Sentinel errors for action graph resolution.
var (
	// ErrInvalidDocument indicates the aquery output could not be decoded.
	ErrInvalidDocument = errors.New("invalid aquery document")

	// ErrResolution indicates the document is internally inconsistent.
	ErrResolution = errors.New("action graph resolution failed")
)

// DanglingReferenceError reports an id that is referenced but not defined.
type DanglingReferenceError struct {
	// Table is the table that should contain the id ("artifacts", ...).
	Table string

	// ID is the missing id.
	ID uint32
}

// Error implements the error interface.
func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s: no %s entry with id %d", ErrResolution, e.Table, e.ID)
}

// Unwrap lets errors.Is match ErrResolution.
func (e *DanglingReferenceError) Unwrap() error {
	return ErrResolution
}

func dangling(table string, id uint32) error {
	return &DanglingReferenceError{Table: table, ID: id}
}
