// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package atomic provides all-or-nothing multi-file edit transactions.
//
// A caller builds a Transaction out of create/edit/delete operations and
// hands it to the Engine, which validates every edit up front, locks the
// involved paths in sorted order, applies the edits, and on any failure
// reverses whatever was already applied. Committed transactions are
// recorded in the session's undo history as a single reversible group.
package atomic

import (
	"time"
)

// Operation is the kind of change a FileEdit performs.
type Operation string

const (
	// OpCreate writes a new file that must not already exist.
	OpCreate Operation = "create"

	// OpEdit replaces the content of an existing file.
	OpEdit Operation = "edit"

	// OpDelete removes an existing file.
	OpDelete Operation = "delete"
)

// Status is the lifecycle state of a Transaction.
//
// Transitions: StatusPending -> StatusValidating -> StatusApplying ->
// one of StatusCommitted, StatusRolledBack, or StatusFailed.
type Status string

const (
	// StatusPending means the caller is still adding edits.
	StatusPending Status = "pending"

	// StatusValidating means pre-flight checks are running.
	StatusValidating Status = "validating"

	// StatusApplying means edits are being written to disk.
	StatusApplying Status = "applying"

	// StatusCommitted means every edit applied successfully.
	StatusCommitted Status = "committed"

	// StatusRolledBack means an edit failed and all applied edits were
	// reversed.
	StatusRolledBack Status = "rolled_back"

	// StatusFailed means validation rejected the transaction before
	// anything touched disk.
	StatusFailed Status = "failed"
)

// FileEdit is a single file operation within a transaction.
type FileEdit struct {
	// Path is the target file path.
	Path string `json:"path"`

	// OldContent is the content the caller believes is currently on
	// disk. Empty for OpCreate. Validation rejects the transaction if
	// the disk content differs.
	OldContent string `json:"old_content"`

	// NewContent is the content to write. Empty for OpDelete.
	NewContent string `json:"new_content"`

	// Operation is the kind of change.
	Operation Operation `json:"operation"`

	// Applied is set once the edit has been written to disk.
	Applied bool `json:"applied"`

	// Error holds the apply failure for this edit, if any.
	Error string `json:"error,omitempty"`
}

// Transaction is an ordered batch of file edits that succeed or fail
// together. Owned by the creating caller until committed; the Engine
// discards it from its active set after Commit returns.
type Transaction struct {
	// ID uniquely identifies the transaction.
	ID string `json:"id"`

	// Edits are the member operations in apply order.
	Edits []*FileEdit `json:"edits"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// CreatedAt records when the transaction was created.
	CreatedAt time.Time `json:"created_at"`

	// Description is free text carried into the undo history.
	Description string `json:"description"`

	// SnapshotHash is the opaque session snapshot token captured at
	// commit time. Stored for later diffing and audit, not interpreted
	// here.
	SnapshotHash string `json:"snapshot_hash,omitempty"`
}

// AddEdit appends a content replacement for an existing file.
func (t *Transaction) AddEdit(path, oldContent, newContent string) *FileEdit {
	return t.add(path, oldContent, newContent, OpEdit)
}

// AddCreate appends a file creation.
func (t *Transaction) AddCreate(path, content string) *FileEdit {
	return t.add(path, "", content, OpCreate)
}

// AddDelete appends a file deletion. currentContent is validated
// against disk before the transaction applies.
func (t *Transaction) AddDelete(path, currentContent string) *FileEdit {
	return t.add(path, currentContent, "", OpDelete)
}

func (t *Transaction) add(path, oldContent, newContent string, op Operation) *FileEdit {
	edit := &FileEdit{
		Path:       path,
		OldContent: oldContent,
		NewContent: newContent,
		Operation:  op,
	}
	t.Edits = append(t.Edits, edit)
	return edit
}

// Paths returns the target paths of all edits in apply order.
func (t *Transaction) Paths() []string {
	paths := make([]string, 0, len(t.Edits))
	for _, e := range t.Edits {
		paths = append(paths, e.Path)
	}
	return paths
}

// FileCount returns the number of edits in the transaction.
func (t *Transaction) FileCount() int { return len(t.Edits) }

// Result is the outcome of one Commit call. Immutable after return.
type Result struct {
	// Success is true iff validation passed and every edit applied.
	Success bool `json:"success"`

	// TransactionID identifies the transaction this result belongs to.
	TransactionID string `json:"transaction_id"`

	// FilesCreated lists paths created by the transaction.
	FilesCreated []string `json:"files_created,omitempty"`

	// FilesModified lists paths whose content was replaced.
	FilesModified []string `json:"files_modified,omitempty"`

	// FilesDeleted lists paths removed by the transaction.
	FilesDeleted []string `json:"files_deleted,omitempty"`

	// Errors holds validation violations, apply failures, and rollback
	// failures as human-readable strings.
	Errors []string `json:"errors,omitempty"`

	// RolledBack is true when an apply failure caused the applied
	// edits to be reversed.
	RolledBack bool `json:"rolled_back"`

	// Duration is how long the commit took.
	Duration time.Duration `json:"duration"`
}

// Config configures an Engine.
type Config struct {
	// MaxEditsPerTransaction caps the number of edits a single
	// transaction may carry. Zero means the default.
	MaxEditsPerTransaction int

	// DefaultToolName is recorded on history operations when the
	// caller does not name a tool.
	DefaultToolName string

	// MetricsEnabled controls whether OpenTelemetry metrics are
	// recorded.
	MetricsEnabled bool

	// TracingEnabled controls whether OpenTelemetry spans are created.
	TracingEnabled bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxEditsPerTransaction: 1000,
		DefaultToolName:        "multiedit",
		MetricsEnabled:         true,
		TracingEnabled:         true,
	}
}
