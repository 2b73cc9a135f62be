// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	h := New()
	recordSimpleEdit(h, "/tmp/a.txt", "old", "new")
	h.RecordTransaction("txn_rt", []EditRecord{
		{FilePath: "/tmp/b.txt", AfterContent: "b", Operation: OpCreate},
		{FilePath: "/tmp/c.txt", BeforeContent: "bye", AfterContent: "", Operation: OpDelete},
	}, "grouped", "snap_rt")
	recordSimpleEdit(h, "/tmp/a.txt", "new", "newer")
	h.Undo("") // one entry on the redo stack

	data, err := MarshalState(h.Snapshot())
	require.NoError(t, err)

	state, err := UnmarshalState(data)
	require.NoError(t, err)

	restored, err := FromState(state)
	require.NoError(t, err)

	// Stack order, tags, and counter survive the round trip.
	assert.Equal(t, h.opCounter, restored.opCounter)
	require.Len(t, restored.undoStack, len(h.undoStack))
	for i := range h.undoStack {
		assert.Equal(t, h.undoStack[i].EntryID(), restored.undoStack[i].EntryID())
	}
	require.Len(t, restored.redoStack, len(h.redoStack))
	for i := range h.redoStack {
		assert.Equal(t, h.redoStack[i].EntryID(), restored.redoStack[i].EntryID())
	}

	group := restored.Transaction("txn_rt")
	require.NotNil(t, group)
	assert.Equal(t, []string{"/tmp/b.txt", "/tmp/c.txt"}, group.FilePaths())
	assert.Equal(t, "snap_rt", group.SnapshotHash)

	// The restored history behaves like the original.
	assert.True(t, restored.CanUndo("/tmp/b.txt"))
	assert.True(t, restored.CanRedo("/tmp/a.txt"))
}

func TestStateRoundTrip_PreservesEntryKinds(t *testing.T) {
	h := New()
	recordSimpleEdit(h, "/tmp/a.txt", "1", "2")
	h.RecordTransaction("txn_kinds", []EditRecord{
		{FilePath: "/tmp/b.txt", BeforeContent: "x", AfterContent: "y"},
	}, "", "")

	state := h.Snapshot()
	require.Len(t, state.UndoStack, 2)
	assert.Equal(t, entryTypeEdit, state.UndoStack[0].Type)
	assert.Equal(t, entryTypeTransaction, state.UndoStack[1].Type)

	restored, err := FromState(state)
	require.NoError(t, err)

	_, isEdit := restored.undoStack[0].(*EditOperation)
	assert.True(t, isEdit)
	_, isGroup := restored.undoStack[1].(*TransactionGroup)
	assert.True(t, isGroup)
}

func TestFromState_NilYieldsEmpty(t *testing.T) {
	h, err := FromState(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, h.UndoCount(""))
	assert.Equal(t, 0, h.RedoCount(""))
}

func TestFromState_RejectsUnknownTag(t *testing.T) {
	state := &State{
		UndoStack: []EntryState{{Type: "mystery"}},
	}
	_, err := FromState(state)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestFromState_RejectsMissingPayload(t *testing.T) {
	state := &State{
		RedoStack: []EntryState{{Type: entryTypeEdit}},
	}
	_, err := FromState(state)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestFromState_CounterContinues(t *testing.T) {
	h := New()
	recordSimpleEdit(h, "/tmp/a.txt", "1", "2")
	recordSimpleEdit(h, "/tmp/a.txt", "2", "3")

	restored, err := FromState(h.Snapshot())
	require.NoError(t, err)

	op := recordSimpleEdit(restored, "/tmp/a.txt", "3", "4")
	assert.Contains(t, op.ID, "op_3_")
}
