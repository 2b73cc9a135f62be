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
	"context"
	"fmt"

	"github.com/AleutianAI/aleutian-edit/services/edit/history"
)

// Undo reverses the most recent reversible entry and restores the
// affected files on disk.
//
// # Description
//
// Pops the next entry from the session's undo stack (path-scoped when
// path is non-empty), locks the affected paths, and rewrites each file
// to its before-content. A transaction group is reversed member by
// member in reverse apply order, so a grouped change undoes as one
// unit. If a physical restore fails, the entry is pushed back onto the
// undo stack so history and disk do not silently diverge.
//
// # Inputs
//
//   - ctx: Context for cancellation while waiting on path locks.
//   - session: The owning session. Required.
//   - path: Optional file path to scope the undo to. Empty means the
//     most recent entry overall.
//
// # Outputs
//
//   - history.Entry: The reversed entry, or nil when nothing matched.
//     A nil entry with a nil error is ordinary "nothing to undo"
//     control flow, not a failure.
//   - error: Non-nil on lock-wait cancellation or a failed restore.
func (e *Engine) Undo(ctx context.Context, session Session, path string) (history.Entry, error) {
	if session == nil {
		return nil, ErrNoSession
	}

	ctx, span := e.tracer.StartUndo(ctx, "undo", path)
	var err error
	var entry history.Entry
	defer func() { e.tracer.EndUndo(span, entry, err) }()

	hist := session.UndoHistory()
	entry = hist.Undo(path)
	if entry == nil {
		return nil, nil
	}

	release, lockErr := e.locks.AcquireAll(ctx, entry.FilePaths())
	if lockErr != nil {
		hist.ReturnToUndo(entry)
		entry = nil
		err = fmt.Errorf("acquiring path locks: %w", lockErr)
		return nil, err
	}
	defer release()

	if restoreErr := e.restoreEntry(entry, restoreBefore); restoreErr != nil {
		hist.ReturnToUndo(entry)
		entry = nil
		err = restoreErr
		return nil, err
	}

	recordUndo(ctx, "undo")
	e.logger.Info("undo applied",
		"entry_id", entry.EntryID(),
		"files", len(entry.FilePaths()))
	return entry, nil
}

// Redo reapplies the most recently undone entry. Mirrors Undo: the
// entry moves from the redo stack back to the undo stack and each file
// is rewritten to its after-content, with group members reapplied in
// original order.
func (e *Engine) Redo(ctx context.Context, session Session, path string) (history.Entry, error) {
	if session == nil {
		return nil, ErrNoSession
	}

	ctx, span := e.tracer.StartUndo(ctx, "redo", path)
	var err error
	var entry history.Entry
	defer func() { e.tracer.EndUndo(span, entry, err) }()

	hist := session.UndoHistory()
	entry = hist.Redo(path)
	if entry == nil {
		return nil, nil
	}

	release, lockErr := e.locks.AcquireAll(ctx, entry.FilePaths())
	if lockErr != nil {
		hist.ReturnToRedo(entry)
		entry = nil
		err = fmt.Errorf("acquiring path locks: %w", lockErr)
		return nil, err
	}
	defer release()

	if restoreErr := e.restoreEntry(entry, restoreAfter); restoreErr != nil {
		hist.ReturnToRedo(entry)
		entry = nil
		err = restoreErr
		return nil, err
	}

	recordUndo(ctx, "redo")
	e.logger.Info("redo applied",
		"entry_id", entry.EntryID(),
		"files", len(entry.FilePaths()))
	return entry, nil
}

// restoreDirection chooses which side of an operation to put on disk.
type restoreDirection int

const (
	restoreBefore restoreDirection = iota
	restoreAfter
)

// restoreEntry rewrites the files covered by an entry. Groups restore
// in reverse member order for undo and original order for redo, so
// overlapping edits to the same file inside one group land correctly.
func (e *Engine) restoreEntry(entry history.Entry, dir restoreDirection) error {
	switch v := entry.(type) {
	case *history.EditOperation:
		return e.restoreOp(v, dir)
	case *history.TransactionGroup:
		if dir == restoreBefore {
			for i := len(v.Edits) - 1; i >= 0; i-- {
				if err := e.restoreOp(v.Edits[i], dir); err != nil {
					return err
				}
			}
			return nil
		}
		for _, op := range v.Edits {
			if err := e.restoreOp(op, dir); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown history entry type %T", entry)
	}
}

// restoreOp puts one operation's before or after state on disk. An
// operation recorded without a kind is treated as a plain edit.
func (e *Engine) restoreOp(op *history.EditOperation, dir restoreDirection) error {
	direction := "undo"
	if dir == restoreAfter {
		direction = "redo"
	}

	var err error
	if dir == restoreBefore {
		switch op.Operation {
		case history.OpCreate:
			// Undoing a create removes the file.
			if e.fs.Exists(op.FilePath) {
				err = e.fs.Remove(op.FilePath)
			}
		default:
			err = e.fs.WriteFile(op.FilePath, op.BeforeContent)
		}
	} else {
		switch op.Operation {
		case history.OpDelete:
			// Redoing a delete removes the file again.
			if e.fs.Exists(op.FilePath) {
				err = e.fs.Remove(op.FilePath)
			}
		default:
			err = e.fs.WriteFile(op.FilePath, op.AfterContent)
		}
	}

	if err != nil {
		return &RestoreError{Path: op.FilePath, Direction: direction, Err: err}
	}
	return nil
}

// EditSpec describes one file change for ApplyEdits. An empty
// Operation means OpEdit.
type EditSpec struct {
	Path       string
	OldContent string
	NewContent string
	Operation  Operation
}

// ApplyEdits executes a batch of file edits atomically in one call.
//
// # Description
//
// Convenience wrapper for callers that do not need to build the
// transaction incrementally: creates a transaction, adds every spec,
// and commits it.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - edits: The file changes to apply together.
//   - session: Optional session for snapshot and history recording.
//   - description: Free text for the undo history.
//
// # Outputs
//
//   - *Result: The commit outcome.
//   - error: See Commit.
func (e *Engine) ApplyEdits(ctx context.Context, edits []EditSpec, session Session, description string) (*Result, error) {
	txn := e.CreateTransaction(description)
	for _, spec := range edits {
		op := spec.Operation
		if op == "" {
			op = OpEdit
		}
		txn.add(spec.Path, spec.OldContent, spec.NewContent, op)
	}
	return e.Commit(ctx, txn, session)
}
