// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history tracks reversible file edits for a session.
//
// The history holds two stacks of entries, where an entry is either a
// single EditOperation or a TransactionGroup covering a whole committed
// multi-file transaction. Groups move between the stacks as one unit so
// a grouped change undoes and redoes atomically.
//
// The history never touches the filesystem. Undo and Redo hand back the
// content needed to restore a file; the caller performs the write or
// delete and, on failure, pushes the entry back with ReturnToUndo or
// ReturnToRedo.
package history

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Entry types
// =============================================================================

// Operation values recorded on an EditOperation. An empty Operation is
// treated as OpEdit for backward compatibility with older persisted
// state.
const (
	OpCreate = "create"
	OpEdit   = "edit"
	OpDelete = "delete"
)

// Entry is one reversible unit on an undo or redo stack: either a
// single EditOperation or a whole TransactionGroup. The set of
// implementations is closed.
type Entry interface {
	// EntryID returns the entry's unique identifier.
	EntryID() string

	// Touches reports whether the entry involves the given file path.
	Touches(path string) bool

	// FilePaths returns the file paths the entry involves, in edit
	// order.
	FilePaths() []string

	isEntry()
}

// EditOperation is a committed, reversible change to a single file.
// Created by the history at record time and never mutated afterward.
type EditOperation struct {
	// ID uniquely identifies this operation within the session.
	ID string `json:"id"`

	// FilePath is the path of the file that was changed.
	FilePath string `json:"file_path"`

	// BeforeContent is the file content prior to the change. Empty for
	// a create.
	BeforeContent string `json:"before_content"`

	// AfterContent is the file content after the change. Empty for a
	// delete.
	AfterContent string `json:"after_content"`

	// Timestamp records when the operation was recorded.
	Timestamp time.Time `json:"timestamp"`

	// ToolName is the name of the tool that produced the edit.
	ToolName string `json:"tool_name"`

	// Description is free text describing the change.
	Description string `json:"description"`

	// SnapshotHash is the opaque session snapshot token captured before
	// the change was applied. Not interpreted here.
	SnapshotHash string `json:"snapshot_hash,omitempty"`

	// Operation is one of OpCreate, OpEdit, or OpDelete. Empty means
	// OpEdit.
	Operation string `json:"operation,omitempty"`

	// TransactionID links the operation to the transaction group it
	// belongs to, if any.
	TransactionID string `json:"transaction_id,omitempty"`
}

// EntryID returns the operation's identifier.
func (op *EditOperation) EntryID() string { return op.ID }

// Touches reports whether the operation changed the given path.
func (op *EditOperation) Touches(path string) bool { return op.FilePath == path }

// FilePaths returns the single path the operation changed.
func (op *EditOperation) FilePaths() []string { return []string{op.FilePath} }

func (op *EditOperation) isEntry() {}

// TransactionGroup is a committed multi-file change recorded as one
// reversible unit. Its ID equals the originating transaction's ID. Once
// created it is immutable; it moves between the undo and redo stacks
// whole, never split.
type TransactionGroup struct {
	// ID is the originating transaction's identifier.
	ID string `json:"id"`

	// Edits are the member operations in original apply order.
	Edits []*EditOperation `json:"edits"`

	// Timestamp records when the group was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Description is free text describing the whole change.
	Description string `json:"description"`

	// SnapshotHash is the session snapshot token captured before the
	// transaction applied.
	SnapshotHash string `json:"snapshot_hash,omitempty"`
}

// EntryID returns the group's identifier.
func (g *TransactionGroup) EntryID() string { return g.ID }

// Touches reports whether any member edit involves the given path.
func (g *TransactionGroup) Touches(path string) bool {
	for _, op := range g.Edits {
		if op.FilePath == path {
			return true
		}
	}
	return false
}

// FilePaths returns the member edits' paths in apply order.
func (g *TransactionGroup) FilePaths() []string {
	paths := make([]string, 0, len(g.Edits))
	for _, op := range g.Edits {
		paths = append(paths, op.FilePath)
	}
	return paths
}

func (g *TransactionGroup) isEntry() {}

// EditRecord is the caller-supplied description of one file change
// passed to RecordEdit and RecordTransaction.
type EditRecord struct {
	// FilePath is the path of the changed file.
	FilePath string

	// BeforeContent is the content prior to the change.
	BeforeContent string

	// AfterContent is the content after the change.
	AfterContent string

	// Operation is OpCreate, OpEdit, or OpDelete. Empty means OpEdit.
	Operation string

	// ToolName names the producing tool. RecordEdit defaults it to
	// "edit" when empty.
	ToolName string

	// Description is free text for history views.
	Description string

	// SnapshotHash is the session snapshot token, if one was taken.
	SnapshotHash string
}

// =============================================================================
// UndoHistory
// =============================================================================

// UndoHistory manages the undo and redo stacks for one session. Safe
// for concurrent use.
type UndoHistory struct {
	mu        sync.Mutex
	undoStack []Entry
	redoStack []Entry
	opCounter uint64
	groups    map[string]*TransactionGroup
	logger    *slog.Logger
}

// New creates an empty history.
func New() *UndoHistory {
	return &UndoHistory{
		groups: make(map[string]*TransactionGroup),
		logger: slog.Default().With("component", "undo_history"),
	}
}

// generateID produces a unique operation ID. Caller must hold mu.
func (h *UndoHistory) generateID() string {
	h.opCounter++
	return fmt.Sprintf("op_%d_%s", h.opCounter, time.Now().Format("150405.000000"))
}

// RecordEdit pushes a single edit onto the undo stack and clears the
// redo stack entirely.
//
// # Description
// Records one reversible file change. Clearing the redo stack keeps
// history a single linear branch: once a new change lands, previously
// undone changes can no longer be reapplied.
//
// # Inputs
//   - rec: the change's path, before/after content, operation kind,
//     tool name, description, and snapshot token.
//
// # Outputs
//   - *EditOperation: the recorded operation with its generated ID.
func (h *UndoHistory) RecordEdit(rec EditRecord) *EditOperation {
	h.mu.Lock()
	defer h.mu.Unlock()

	toolName := rec.ToolName
	if toolName == "" {
		toolName = "edit"
	}
	op := &EditOperation{
		ID:            h.generateID(),
		FilePath:      rec.FilePath,
		BeforeContent: rec.BeforeContent,
		AfterContent:  rec.AfterContent,
		Timestamp:     time.Now(),
		ToolName:      toolName,
		Description:   rec.Description,
		SnapshotHash:  rec.SnapshotHash,
		Operation:     rec.Operation,
	}
	h.undoStack = append(h.undoStack, op)
	h.redoStack = nil

	h.logger.Debug("recorded edit",
		"op_id", op.ID,
		"file_path", op.FilePath,
		"undo_depth", len(h.undoStack))
	return op
}

// RecordTransaction builds one TransactionGroup from the given edits,
// pushes it as a single undo-stack entry, and clears the redo stack.
//
// # Description
// The group's ID equals the transaction's ID, and the group is indexed
// for direct lookup via Transaction. Member operations receive their
// own generated IDs and carry the transaction ID as a back-reference.
//
// # Inputs
//   - transactionID: the committed transaction's identifier.
//   - edits: per-file before/after records in apply order.
//   - description: free text for history views.
//   - snapshotHash: the session snapshot token captured before apply.
//
// # Outputs
//   - *TransactionGroup: the recorded group.
func (h *UndoHistory) RecordTransaction(transactionID string, edits []EditRecord, description, snapshotHash string) *TransactionGroup {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := &TransactionGroup{
		ID:           transactionID,
		Edits:        make([]*EditOperation, 0, len(edits)),
		Timestamp:    time.Now(),
		Description:  description,
		SnapshotHash: snapshotHash,
	}
	for _, rec := range edits {
		toolName := rec.ToolName
		if toolName == "" {
			toolName = "multiedit"
		}
		group.Edits = append(group.Edits, &EditOperation{
			ID:            h.generateID(),
			FilePath:      rec.FilePath,
			BeforeContent: rec.BeforeContent,
			AfterContent:  rec.AfterContent,
			Timestamp:     group.Timestamp,
			ToolName:      toolName,
			Description:   rec.Description,
			SnapshotHash:  snapshotHash,
			Operation:     rec.Operation,
			TransactionID: transactionID,
		})
	}
	h.undoStack = append(h.undoStack, group)
	h.redoStack = nil
	h.groups[transactionID] = group

	h.logger.Debug("recorded transaction group",
		"transaction_id", transactionID,
		"edit_count", len(group.Edits),
		"undo_depth", len(h.undoStack))
	return group
}

// Undo pops the next reversible entry from the undo stack and moves it
// to the redo stack.
//
// # Description
// With an empty path the top entry is popped. With a path, the stack is
// scanned from the top for the most recent entry touching that path and
// that specific entry is popped, even if it is not the top. The scan is
// linear in stack depth; interactive sessions stay small enough that an
// index is not worth the bookkeeping.
//
// # Inputs
//   - path: optional file path to scope the undo to. Empty means any.
//
// # Outputs
//   - Entry: the entry to reverse, or nil if nothing matches. The
//     caller applies the restore and calls ReturnToUndo if it fails.
func (h *UndoHistory) Undo(path string) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := findEntry(h.undoStack, path)
	if i < 0 {
		return nil
	}
	entry := h.undoStack[i]
	h.undoStack = append(h.undoStack[:i], h.undoStack[i+1:]...)
	h.redoStack = append(h.redoStack, entry)
	return entry
}

// Redo pops the next redoable entry from the redo stack and moves it to
// the undo stack. Mirrors Undo exactly.
func (h *UndoHistory) Redo(path string) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := findEntry(h.redoStack, path)
	if i < 0 {
		return nil
	}
	entry := h.redoStack[i]
	h.redoStack = append(h.redoStack[:i], h.redoStack[i+1:]...)
	h.undoStack = append(h.undoStack, entry)
	return entry
}

// ReturnToUndo pushes an entry back onto the undo stack after a failed
// undo restore. Its redo-stack copy is discarded. The redo stack is
// otherwise untouched; returning an entry is a compensation, not a new
// change.
func (h *UndoHistory) ReturnToUndo(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redoStack = removeEntry(h.redoStack, entry)
	h.undoStack = append(h.undoStack, entry)
}

// ReturnToRedo pushes an entry back onto the redo stack after a failed
// redo restore. Its undo-stack copy is discarded.
func (h *UndoHistory) ReturnToRedo(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undoStack = removeEntry(h.undoStack, entry)
	h.redoStack = append(h.redoStack, entry)
}

// CanUndo reports whether an undo is available, optionally scoped to a
// file path. Does not mutate either stack.
func (h *UndoHistory) CanUndo(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return findEntry(h.undoStack, path) >= 0
}

// CanRedo reports whether a redo is available, optionally scoped to a
// file path.
func (h *UndoHistory) CanRedo(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return findEntry(h.redoStack, path) >= 0
}

// History returns a most-recent-first view of undo-stack entries,
// optionally filtered to entries touching path, capped at limit.
func (h *UndoHistory) History(path string, limit int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.undoStack
	if path != "" {
		filtered := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.Touches(path) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out
}

// FileHistory returns the chronological history of a single file,
// expanding transaction groups into their member operations so the
// caller never has to reason about groups.
func (h *UndoHistory) FileHistory(path string) []*EditOperation {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*EditOperation
	for _, e := range h.undoStack {
		switch v := e.(type) {
		case *EditOperation:
			if v.FilePath == path {
				out = append(out, v)
			}
		case *TransactionGroup:
			for _, op := range v.Edits {
				if op.FilePath == path {
					out = append(out, op)
				}
			}
		}
	}
	return out
}

// UndoCount returns the number of undoable entries, optionally scoped
// to a file path. A group counts once regardless of how many files it
// touches.
func (h *UndoHistory) UndoCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return countEntries(h.undoStack, path)
}

// RedoCount returns the number of redoable entries, optionally scoped
// to a file path.
func (h *UndoHistory) RedoCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return countEntries(h.redoStack, path)
}

// Transaction returns the recorded group for a transaction ID, or nil.
func (h *UndoHistory) Transaction(id string) *TransactionGroup {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[id]
}

// Clear discards all history.
func (h *UndoHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undoStack = nil
	h.redoStack = nil
	h.groups = make(map[string]*TransactionGroup)
}

// findEntry locates the topmost entry touching path, or the top entry
// when path is empty. Returns -1 if nothing matches.
func findEntry(stack []Entry, path string) int {
	if path == "" {
		return len(stack) - 1
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Touches(path) {
			return i
		}
	}
	return -1
}

// removeEntry deletes the given entry from the stack by identity,
// preserving order.
func removeEntry(stack []Entry, entry Entry) []Entry {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == entry {
			return append(stack[:i], stack[i+1:]...)
		}
	}
	return stack
}

// countEntries counts entries touching path, or all entries when path
// is empty.
func countEntries(stack []Entry, path string) int {
	if path == "" {
		return len(stack)
	}
	n := 0
	for _, e := range stack {
		if e.Touches(path) {
			n++
		}
	}
	return n
}
