// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the per-session undo history and snapshot
// tokens the edit engine records on committed transactions.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/aleutian-edit/services/edit/history"
)

// Config configures a Local session.
type Config struct {
	// StateDir is where session state files are persisted. Defaults to
	// ".aleutian/sessions" under WorkDir.
	StateDir string

	// WorkDir is the workspace root the session operates in. Defaults
	// to the current directory.
	WorkDir string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{WorkDir: "."}
}

// Local is an in-process session: one undo history plus snapshot token
// generation, with optional JSON persistence of the history state.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Local struct {
	id      string
	config  Config
	hist    *history.UndoHistory
	snapSeq uint64
	mu      sync.Mutex
	logger  *slog.Logger
}

// persistedState is the on-disk layout of a saved session.
type persistedState struct {
	SessionID string         `json:"session_id"`
	SavedAt   time.Time      `json:"saved_at"`
	History   *history.State `json:"history"`
}

// NewLocal creates a new session with an empty history.
//
// # Inputs
//
//   - config: Session configuration. Use DefaultConfig() for defaults.
//
// # Outputs
//
//   - *Local: Ready-to-use session.
//   - error: Non-nil if the state directory cannot be created.
func NewLocal(config Config) (*Local, error) {
	if config.WorkDir == "" {
		config.WorkDir = "."
	}
	if config.StateDir == "" {
		config.StateDir = filepath.Join(config.WorkDir, ".aleutian", "sessions")
	}
	if err := os.MkdirAll(config.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	id := "session_" + uuid.New().String()
	return &Local{
		id:     id,
		config: config,
		hist:   history.New(),
		logger: slog.Default().With("component", "session.Local", "session_id", id),
	}, nil
}

// ID returns the session identifier.
func (s *Local) ID() string { return s.id }

// TrackSnapshot returns a fresh opaque snapshot token.
//
// # Description
//
// The token identifies a point in the session's timeline for later
// diffing and audit; nothing in the edit engine interprets it. It is a
// hash of the session identity, a per-session sequence number, and the
// wall clock, so tokens are unique across sessions and restarts.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//
// # Outputs
//
//   - string: The snapshot token.
//   - error: Non-nil only when ctx is already cancelled.
func (s *Local) TrackSnapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.snapSeq++
	seq := s.snapSeq
	s.mu.Unlock()

	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%d", s.id, seq, time.Now().UnixNano()))
	return fmt.Sprintf("%x", sum[:16]), nil
}

// UndoHistory returns the one history instance owned by this session.
func (s *Local) UndoHistory() *history.UndoHistory { return s.hist }

// Save persists the session's history state to
// <StateDir>/<session-id>.json.
func (s *Local) Save() error {
	state := persistedState{
		SessionID: s.id,
		SavedAt:   time.Now(),
		History:   s.hist.Snapshot(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}

	path := s.statePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session state: %w", err)
	}

	s.logger.Debug("session state saved", "path", path)
	return nil
}

// LoadLocal restores a previously saved session by ID.
//
// # Inputs
//
//   - config: Session configuration pointing at the same StateDir the
//     session was saved under.
//   - id: The saved session's identifier.
//
// # Outputs
//
//   - *Local: The restored session with its history intact.
//   - error: Non-nil if the state file is missing or corrupt.
func LoadLocal(config Config, id string) (*Local, error) {
	if config.WorkDir == "" {
		config.WorkDir = "."
	}
	if config.StateDir == "" {
		config.StateDir = filepath.Join(config.WorkDir, ".aleutian", "sessions")
	}

	path := filepath.Join(config.StateDir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding session state: %w", err)
	}

	hist, err := history.FromState(state.History)
	if err != nil {
		return nil, fmt.Errorf("restoring history: %w", err)
	}

	return &Local{
		id:     state.SessionID,
		config: config,
		hist:   hist,
		logger: slog.Default().With("component", "session.Local", "session_id", state.SessionID),
	}, nil
}

// Close persists the session state.
func (s *Local) Close() error {
	return s.Save()
}

func (s *Local) statePath() string {
	return filepath.Join(s.config.StateDir, s.id+".json")
}
