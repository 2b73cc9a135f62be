// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-edit/services/edit/atomic"
	"github.com/AleutianAI/aleutian-edit/services/edit/history"
)

// Local must satisfy the engine's session contract.
var _ atomic.Session = (*Local)(nil)

func newTestSession(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(Config{WorkDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestNewLocal_CreatesStateDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(Config{WorkDir: dir})
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, ".aleutian", "sessions"))
	assert.NotEmpty(t, s.ID())
	assert.NotNil(t, s.UndoHistory())
}

func TestTrackSnapshot_UniqueTokens(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := s.TrackSnapshot(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.False(t, seen[token], "duplicate token %q", token)
		seen[token] = true
	}
}

func TestTrackSnapshot_CancelledContext(t *testing.T) {
	s := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.TrackSnapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveLoad_RoundTripsHistory(t *testing.T) {
	dir := t.TempDir()
	config := Config{WorkDir: dir}

	s, err := NewLocal(config)
	require.NoError(t, err)

	s.UndoHistory().RecordEdit(history.EditRecord{
		FilePath:      "/tmp/a.txt",
		BeforeContent: "old",
		AfterContent:  "new",
	})
	s.UndoHistory().RecordTransaction("txn_persist", []history.EditRecord{
		{FilePath: "/tmp/b.txt", AfterContent: "b", Operation: history.OpCreate},
	}, "persisted group", "snap_p")

	require.NoError(t, s.Save())

	restored, err := LoadLocal(config, s.ID())
	require.NoError(t, err)

	assert.Equal(t, s.ID(), restored.ID())
	assert.Equal(t, 2, restored.UndoHistory().UndoCount(""))
	assert.True(t, restored.UndoHistory().CanUndo("/tmp/a.txt"))

	group := restored.UndoHistory().Transaction("txn_persist")
	require.NotNil(t, group)
	assert.Equal(t, "persisted group", group.Description)
}

func TestLoadLocal_MissingState(t *testing.T) {
	_, err := LoadLocal(Config{WorkDir: t.TempDir()}, "session_missing")
	assert.Error(t, err)
}

func TestClose_Persists(t *testing.T) {
	dir := t.TempDir()
	config := Config{WorkDir: dir}

	s, err := NewLocal(config)
	require.NoError(t, err)
	s.UndoHistory().RecordEdit(history.EditRecord{FilePath: "/tmp/x.txt", AfterContent: "x"})
	require.NoError(t, s.Close())

	restored, err := LoadLocal(config, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, restored.UndoHistory().UndoCount(""))
}
