// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package atomic

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine misuse. Validation and apply failures are
// not errors in this sense; they are reported inside the Result so a
// partially-applied batch can never escape as an unhandled failure.
var (
	// ErrNilTransaction indicates a nil transaction was passed to the
	// engine.
	ErrNilTransaction = errors.New("transaction is nil")

	// ErrTransactionClosed indicates the transaction was already
	// committed, rolled back, or failed.
	ErrTransactionClosed = errors.New("transaction already finished")

	// ErrTooManyEdits indicates the transaction exceeds the configured
	// edit cap.
	ErrTooManyEdits = errors.New("transaction exceeds maximum edit count")

	// ErrNoSession indicates an operation that requires a session was
	// called without one.
	ErrNoSession = errors.New("session is required")
)

// ValidationError aggregates every pre-flight violation found in a
// transaction, so the caller can report everything wrong at once.
type ValidationError struct {
	// TransactionID identifies the rejected transaction.
	TransactionID string

	// Violations are the human-readable violation messages, one per
	// failed check.
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction %s failed validation with %d violation(s): %s",
		e.TransactionID, len(e.Violations), e.Violations[0])
}

// RollbackError reports a failure to reverse one already-applied edit.
// The affected file's on-disk state may match neither the old nor the
// new content.
type RollbackError struct {
	// Path is the file whose reversal failed.
	Path string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("Rollback failed for %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error { return e.Err }

// RestoreError reports a failure to physically restore a file during
// undo or redo. The history entry has been returned to the stack it
// came from.
type RestoreError struct {
	// Path is the file whose restore failed.
	Path string

	// Direction is "undo" or "redo".
	Direction string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *RestoreError) Error() string {
	return fmt.Sprintf("%s restore failed for %s: %v", e.Direction, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RestoreError) Unwrap() error { return e.Err }
