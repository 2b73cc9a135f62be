// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package preview shows file changes to a reviewer before they are
// applied. A reviewer decides per file whether to apply, skip, or
// cancel; cancel aborts the whole batch.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/AleutianAI/aleutian-edit/services/edit/atomic"
)

// Decision is a reviewer's verdict on one proposed change.
type Decision string

const (
	// DecisionApply approves the change.
	DecisionApply Decision = "apply"

	// DecisionSkip drops this change but continues with the rest of
	// the batch.
	DecisionSkip Decision = "skip"

	// DecisionCancel aborts the whole batch.
	DecisionCancel Decision = "cancel"
)

// ErrPreviewCancelled is returned when the reviewer cancels a batch.
var ErrPreviewCancelled = errors.New("diff preview cancelled")

// Request is one proposed change presented to a reviewer.
type Request struct {
	// ID uniquely identifies the request.
	ID string `json:"id"`

	// FilePath is the file the change targets.
	FilePath string `json:"file_path"`

	// OldContent is the content currently on disk.
	OldContent string `json:"old_content"`

	// NewContent is the proposed content.
	NewContent string `json:"new_content"`

	// ToolName names the tool proposing the change.
	ToolName string `json:"tool_name"`

	// SessionID identifies the session the change belongs to.
	SessionID string `json:"session_id"`

	// CreatedAt records when the request was made.
	CreatedAt time.Time `json:"created_at"`

	// Diff is the rendered line diff between old and new content.
	Diff string `json:"diff"`
}

// FileName returns the base name of the target file for display.
func (r *Request) FileName() string {
	return filepath.Base(r.FilePath)
}

// Reviewer decides the fate of one proposed change. Implementations
// typically block on user input.
type Reviewer func(ctx context.Context, req *Request) (Decision, error)

// Previewer manages diff previews with a global and per-session enable
// toggle. When disabled for a session, changes auto-apply.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Previewer struct {
	mu             sync.Mutex
	enabled        bool
	sessionEnabled map[string]bool
	reviewer       Reviewer
	dmp            *diffmatchpatch.DiffMatchPatch
	logger         *slog.Logger
}

// New creates a previewer. A nil reviewer auto-applies every change,
// which keeps preview wiring in place for non-interactive runs.
func New(reviewer Reviewer) *Previewer {
	return &Previewer{
		enabled:        true,
		sessionEnabled: make(map[string]bool),
		reviewer:       reviewer,
		dmp:            diffmatchpatch.New(),
		logger:         slog.Default().With("component", "preview.Previewer"),
	}
}

// SetEnabled toggles previewing globally (empty sessionID) or for one
// session.
func (p *Previewer) SetEnabled(enabled bool, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sessionID == "" {
		p.enabled = enabled
		return
	}
	p.sessionEnabled[sessionID] = enabled
}

// Enabled reports whether previewing is active for a session. The
// global toggle overrides per-session settings when off.
func (p *Previewer) Enabled(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return false
	}
	if sessionID != "" {
		if enabled, ok := p.sessionEnabled[sessionID]; ok {
			return enabled
		}
	}
	return p.enabled
}

// Preview presents one proposed change to the reviewer.
//
// # Description
//
// When previewing is disabled for the session the change auto-applies.
// Identical old and new content skips without consulting the reviewer.
// Otherwise the reviewer sees the request with a rendered line diff
// and decides.
//
// # Inputs
//
//   - ctx: Context passed through to the reviewer.
//   - sessionID: Session the change belongs to.
//   - filePath, oldContent, newContent: The proposed change.
//   - toolName: Name of the proposing tool.
//
// # Outputs
//
//   - Decision: The verdict.
//   - error: ErrPreviewCancelled (wrapped) on cancel, or the
//     reviewer's own error.
func (p *Previewer) Preview(ctx context.Context, sessionID, filePath, oldContent, newContent, toolName string) (Decision, error) {
	if !p.Enabled(sessionID) {
		return DecisionApply, nil
	}
	if oldContent == newContent {
		return DecisionSkip, nil
	}

	req := &Request{
		ID:         uuid.New().String(),
		FilePath:   filePath,
		OldContent: oldContent,
		NewContent: newContent,
		ToolName:   toolName,
		SessionID:  sessionID,
		CreatedAt:  time.Now(),
		Diff:       p.renderDiff(oldContent, newContent),
	}

	if p.reviewer == nil {
		return DecisionApply, nil
	}

	p.logger.Info("diff preview requested",
		"file", req.FileName(),
		"session_id", sessionID)

	decision, err := p.reviewer(ctx, req)
	if err != nil {
		return DecisionCancel, err
	}
	if decision == DecisionCancel {
		return DecisionCancel, fmt.Errorf("%w: %s", ErrPreviewCancelled, req.FileName())
	}
	return decision, nil
}

// FilterEdits previews a batch of edits and returns the approved
// subset in original order. A cancel decision aborts and returns
// ErrPreviewCancelled; skipped edits are silently dropped.
func (p *Previewer) FilterEdits(ctx context.Context, sessionID string, edits []atomic.EditSpec, toolName string) ([]atomic.EditSpec, error) {
	approved := make([]atomic.EditSpec, 0, len(edits))
	for _, edit := range edits {
		decision, err := p.Preview(ctx, sessionID, edit.Path, edit.OldContent, edit.NewContent, toolName)
		if err != nil {
			return nil, err
		}
		if decision == DecisionApply {
			approved = append(approved, edit)
		}
	}
	return approved, nil
}

// renderDiff produces a line-oriented diff with -/+ markers.
func (p *Previewer) renderDiff(oldContent, newContent string) string {
	oldChars, newChars, lines := p.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := p.dmp.DiffMain(oldChars, newChars, false)
	diffs = p.dmp.DiffCharsToLines(diffs, lines)

	var b strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
