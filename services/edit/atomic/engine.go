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
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/aleutian-edit/services/edit/fsops"
	"github.com/AleutianAI/aleutian-edit/services/edit/history"
	"github.com/AleutianAI/aleutian-edit/services/edit/pathlock"
)

// Session is the engine's view of the surrounding agent session. The
// snapshot token is opaque; the engine stores it on committed history
// entries for later diffing and audit.
type Session interface {
	// TrackSnapshot captures a snapshot of the session's workspace and
	// returns its token.
	TrackSnapshot(ctx context.Context) (string, error)

	// UndoHistory returns the session's one history instance.
	UndoHistory() *history.UndoHistory
}

// Engine is the sole path by which files are mutated on behalf of the
// agent.
//
// # Description
//
// The engine enforces all-or-nothing semantics across a transaction's
// edits: validation runs before anything touches disk, involved paths
// are locked in sorted order for the duration of the apply phase, and
// any apply failure reverses every edit already applied.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Transactions
// themselves are single-owner: a Transaction must not be mutated
// concurrently with its own Commit.
type Engine struct {
	config Config
	fs     fsops.FS
	locks  *pathlock.PathLock
	active map[string]*Transaction
	mu     sync.Mutex
	logger *slog.Logger
	tracer *Tracer
}

// NewEngine creates an engine backed by the real filesystem.
//
// # Inputs
//
//   - config: Engine configuration. Use DefaultConfig() for defaults.
//
// # Outputs
//
//   - *Engine: Ready-to-use engine.
func NewEngine(config Config) *Engine {
	return NewEngineWithFS(config, fsops.NewOSFS())
}

// NewEngineWithFS creates an engine with a custom filesystem (for
// testing failure injection at exact apply or rollback points).
//
// # Inputs
//
//   - config: Engine configuration.
//   - fs: Filesystem implementation.
//
// # Outputs
//
//   - *Engine: Ready-to-use engine.
func NewEngineWithFS(config Config, fs fsops.FS) *Engine {
	// Apply defaults
	if config.MaxEditsPerTransaction == 0 {
		config.MaxEditsPerTransaction = 1000
	}
	if config.DefaultToolName == "" {
		config.DefaultToolName = "multiedit"
	}

	logger := slog.Default().With("component", "atomic.Engine")

	// Initialize observability
	SetMetricsEnabled(config.MetricsEnabled)
	tracer := NewTracer(logger, config.TracingEnabled)

	return &Engine{
		config: config,
		fs:     fs,
		locks:  pathlock.New(),
		active: make(map[string]*Transaction),
		logger: logger,
		tracer: tracer,
	}
}

// CreateTransaction creates a new pending transaction and registers it
// in the engine's active set. The caller adds edits and then passes it
// to Commit.
func (e *Engine) CreateTransaction(description string) *Transaction {
	id := "txn_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	txn := &Transaction{
		ID:          id,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		Description: description,
	}

	e.mu.Lock()
	e.active[id] = txn
	e.mu.Unlock()

	e.logger.Debug("created transaction", "transaction_id", id)
	return txn
}

// Active returns the registered transaction for an ID, or nil if it is
// not in the active set.
func (e *Engine) Active(id string) *Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[id]
}

// ActiveCount returns the number of transactions created but not yet
// committed.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Validate checks every edit in the transaction without applying any.
//
// # Description
//
// For a create, the target must not exist and its parent directory
// must be creatable (the directory is created here so the apply phase
// cannot fail on it). For an edit or delete, the target must exist and
// its disk content must exactly equal the edit's OldContent; this is
// the optimistic concurrency check against stale reads.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - txn: The transaction to check. Moves to StatusValidating.
//
// # Outputs
//
//   - []string: Every violation found, one message per failed check.
//     Empty iff the transaction may proceed.
func (e *Engine) Validate(ctx context.Context, txn *Transaction) []string {
	txn.Status = StatusValidating

	var violations []string
	for _, edit := range txn.Edits {
		if err := ctx.Err(); err != nil {
			violations = append(violations, fmt.Sprintf("%s: %v", edit.Path, err))
			break
		}

		switch edit.Operation {
		case OpCreate:
			if e.fs.Exists(edit.Path) {
				violations = append(violations,
					fmt.Sprintf("%s: File already exists", edit.Path))
			}
			if dir := filepath.Dir(edit.Path); !e.fs.Exists(dir) {
				if err := e.fs.MkdirAll(dir); err != nil {
					violations = append(violations,
						fmt.Sprintf("%s: Cannot create parent directory: %v", edit.Path, err))
				}
			}

		case OpDelete:
			if !e.fs.Exists(edit.Path) {
				violations = append(violations,
					fmt.Sprintf("%s: File not found for deletion", edit.Path))
				continue
			}
			content, err := e.fs.ReadFile(edit.Path)
			if err != nil {
				violations = append(violations, fmt.Sprintf("%s: %v", edit.Path, err))
			} else if content != edit.OldContent {
				violations = append(violations,
					fmt.Sprintf("%s: File content changed since transaction started", edit.Path))
			}

		case OpEdit:
			if !e.fs.Exists(edit.Path) {
				violations = append(violations,
					fmt.Sprintf("%s: File not found", edit.Path))
				continue
			}
			content, err := e.fs.ReadFile(edit.Path)
			if err != nil {
				violations = append(violations, fmt.Sprintf("%s: %v", edit.Path, err))
			} else if content != edit.OldContent {
				violations = append(violations,
					fmt.Sprintf("%s: File content changed since transaction started", edit.Path))
			}

		default:
			violations = append(violations,
				fmt.Sprintf("%s: Unknown operation %q", edit.Path, edit.Operation))
		}
	}
	return violations
}

// Commit applies a transaction atomically.
//
// # Description
//
// Runs validation first; any violation fails the transaction before a
// single byte is written and before any lock is taken. Otherwise the
// engine takes a session snapshot token, locks all involved paths in
// sorted canonical order, and applies the edits in order. If every
// edit applies, the transaction is committed and recorded in the
// session's undo history as one group. If any edit fails (including
// context cancellation between edits), every already-applied edit is
// reversed in reverse order; rollback failures are collected into the
// result but do not stop the remaining reversals.
//
// Validation and apply failures are reported inside the Result, never
// as a returned error, so a partially-applied batch can never escape
// as an unhandled failure.
//
// # Inputs
//
//   - ctx: Context for cancellation. Cancellation while waiting on a
//     lock aborts with nothing applied; cancellation mid-apply triggers
//     the normal rollback path, which runs to completion regardless.
//   - txn: The transaction to commit. Must still be pending.
//   - session: Optional session for snapshot capture and history
//     recording. May be nil, in which case neither happens.
//
// # Outputs
//
//   - *Result: The outcome, including per-effect path lists and all
//     collected errors.
//   - error: Non-nil only for engine misuse (nil or finished
//     transaction, edit cap exceeded) or lock-wait cancellation.
func (e *Engine) Commit(ctx context.Context, txn *Transaction, session Session) (result *Result, err error) {
	if txn == nil {
		return nil, ErrNilTransaction
	}
	if txn.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransactionClosed, txn.ID, txn.Status)
	}
	if len(txn.Edits) > e.config.MaxEditsPerTransaction {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEdits,
			len(txn.Edits), e.config.MaxEditsPerTransaction)
	}

	start := time.Now()
	result = &Result{TransactionID: txn.ID}

	// Start tracing span
	ctx, span := e.tracer.StartCommit(ctx, txn)
	defer func() { e.tracer.EndCommit(span, result, err) }()

	logger := LoggerWithTrace(ctx, e.logger)

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Commit: %v", r)
			logger.Error("panic in Commit",
				"panic", r,
				"transaction_id", txn.ID)
		}
	}()

	// Discard from the active set and stamp the duration on exit
	defer func() {
		result.Duration = time.Since(start)
		e.mu.Lock()
		delete(e.active, txn.ID)
		e.mu.Unlock()
	}()

	// Validate first; failure means disk was never touched.
	if violations := e.Validate(ctx, txn); len(violations) > 0 {
		e.setStatus(ctx, txn, StatusFailed)
		result.Errors = violations
		recordValidationFail(ctx, len(violations))
		logger.Warn("transaction failed validation",
			"transaction_id", txn.ID,
			"violations", len(violations))
		return result, nil
	}

	// Capture the session snapshot token before anything changes. A
	// snapshot failure degrades audit, not atomicity, so it does not
	// block the commit.
	if session != nil {
		token, snapErr := session.TrackSnapshot(ctx)
		if snapErr != nil {
			logger.Warn("snapshot capture failed",
				"transaction_id", txn.ID,
				"error", snapErr)
		} else {
			txn.SnapshotHash = token
		}
	}

	e.setStatus(ctx, txn, StatusApplying)

	// Lock every involved path in sorted order before the first write.
	release, lockErr := e.locks.AcquireAll(ctx, txn.Paths())
	if lockErr != nil {
		e.setStatus(ctx, txn, StatusFailed)
		result.Errors = append(result.Errors, lockErr.Error())
		return result, fmt.Errorf("acquiring path locks: %w", lockErr)
	}
	defer release()

	var applied []*FileEdit
	applyFailed := false
	for _, edit := range txn.Edits {
		applyErr := ctx.Err()
		if applyErr == nil {
			applyErr = e.applyEdit(ctx, edit)
		}
		if applyErr != nil {
			edit.Error = applyErr.Error()
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", edit.Path, applyErr))
			applyFailed = true
			break
		}

		edit.Applied = true
		applied = append(applied, edit)
		switch edit.Operation {
		case OpCreate:
			result.FilesCreated = append(result.FilesCreated, edit.Path)
		case OpDelete:
			result.FilesDeleted = append(result.FilesDeleted, edit.Path)
		default:
			result.FilesModified = append(result.FilesModified, edit.Path)
		}
	}

	if applyFailed {
		e.setStatus(ctx, txn, StatusRolledBack)
		result.RolledBack = true
		e.rollback(ctx, applied, result)
		recordRollback(ctx, time.Since(start), len(txn.Edits))
		logger.Warn("transaction rolled back",
			"transaction_id", txn.ID,
			"applied_before_failure", len(applied),
			"errors", len(result.Errors))
		return result, nil
	}

	e.setStatus(ctx, txn, StatusCommitted)
	result.Success = true

	if session != nil {
		e.recordInHistory(txn, session)
	}

	recordCommit(ctx, time.Since(start), len(txn.Edits))
	logger.Info("transaction committed",
		"transaction_id", txn.ID,
		"files", len(txn.Edits),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// applyEdit writes a single edit to disk.
func (e *Engine) applyEdit(ctx context.Context, edit *FileEdit) error {
	start := time.Now()
	ctx, span := e.tracer.StartFileOp(ctx, string(edit.Operation), edit.Path)

	var err error
	defer func() {
		e.tracer.EndFileOp(span, err)
		recordFileOp(ctx, string(edit.Operation), time.Since(start), err)
	}()

	switch edit.Operation {
	case OpCreate, OpEdit:
		err = e.fs.WriteFile(edit.Path, edit.NewContent)
	case OpDelete:
		err = e.fs.Remove(edit.Path)
	default:
		err = fmt.Errorf("unknown operation %q", edit.Operation)
	}
	return err
}

// rollback reverses applied edits in reverse order of application.
// Failures are collected but never stop the remaining reversals, and
// the caller's context is deliberately ignored so a cancelled commit
// still restores every file it can.
func (e *Engine) rollback(ctx context.Context, applied []*FileEdit, result *Result) {
	for i := len(applied) - 1; i >= 0; i-- {
		edit := applied[i]
		if rbErr := e.rollbackEdit(edit); rbErr != nil {
			re := &RollbackError{Path: edit.Path, Err: rbErr}
			result.Errors = append(result.Errors, re.Error())
			recordRollbackFailure(ctx)
			e.logger.Error("rollback failed, on-disk state unknown",
				"path", edit.Path,
				"error", rbErr)
		}
	}
}

// rollbackEdit reverses one applied edit.
func (e *Engine) rollbackEdit(edit *FileEdit) error {
	switch edit.Operation {
	case OpCreate:
		if e.fs.Exists(edit.Path) {
			return e.fs.Remove(edit.Path)
		}
		return nil
	case OpDelete, OpEdit:
		return e.fs.WriteFile(edit.Path, edit.OldContent)
	default:
		return fmt.Errorf("unknown operation %q", edit.Operation)
	}
}

// recordInHistory records a committed transaction as one group in the
// session's undo history.
func (e *Engine) recordInHistory(txn *Transaction, session Session) {
	records := make([]history.EditRecord, 0, len(txn.Edits))
	for _, edit := range txn.Edits {
		records = append(records, history.EditRecord{
			FilePath:      edit.Path,
			BeforeContent: edit.OldContent,
			AfterContent:  edit.NewContent,
			Operation:     string(edit.Operation),
			ToolName:      e.config.DefaultToolName,
		})
	}

	description := txn.Description
	if description == "" {
		description = fmt.Sprintf("Multi-file edit (%d files)", len(txn.Edits))
	}
	session.UndoHistory().RecordTransaction(txn.ID, records, description, txn.SnapshotHash)
}

// setStatus transitions the transaction and records the transition on
// the active span.
func (e *Engine) setStatus(ctx context.Context, txn *Transaction, to Status) {
	from := txn.Status
	txn.Status = to
	e.tracer.RecordStateTransition(ctx, txn.ID, from, to)
}
