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
	"encoding/json"
	"fmt"
)

// Entry type tags used in persisted state.
const (
	entryTypeEdit        = "edit"
	entryTypeTransaction = "transaction"
)

// EntryState is the persisted form of one stack entry: a type tag plus
// exactly one of the two payload fields.
type EntryState struct {
	// Type is entryTypeEdit or entryTypeTransaction.
	Type string `json:"type"`

	// Edit is set when Type is "edit".
	Edit *EditOperation `json:"edit,omitempty"`

	// Group is set when Type is "transaction".
	Group *TransactionGroup `json:"transaction,omitempty"`
}

// State is the serializable form of an UndoHistory. Round-tripping a
// State through JSON reproduces identical stack order, entry tags, and
// counter value. The external session decides where and when to
// persist it.
type State struct {
	// UndoStack holds the undo entries, oldest first.
	UndoStack []EntryState `json:"undo_stack"`

	// RedoStack holds the redo entries, oldest first.
	RedoStack []EntryState `json:"redo_stack"`

	// OpCounter is the monotonically increasing counter used to
	// generate operation IDs.
	OpCounter uint64 `json:"op_counter"`

	// Transactions maps transaction ID to its recorded group for
	// direct lookup.
	Transactions map[string]*TransactionGroup `json:"transactions"`
}

// Snapshot captures the history's current state for persistence.
func (h *UndoHistory) Snapshot() *State {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := &State{
		UndoStack:    make([]EntryState, 0, len(h.undoStack)),
		RedoStack:    make([]EntryState, 0, len(h.redoStack)),
		OpCounter:    h.opCounter,
		Transactions: make(map[string]*TransactionGroup, len(h.groups)),
	}
	for _, e := range h.undoStack {
		state.UndoStack = append(state.UndoStack, tagEntry(e))
	}
	for _, e := range h.redoStack {
		state.RedoStack = append(state.RedoStack, tagEntry(e))
	}
	for id, g := range h.groups {
		state.Transactions[id] = g
	}
	return state
}

// FromState reconstructs a history from persisted state.
//
// # Description
// Rebuilds both stacks in their recorded order and restores the
// operation counter so newly generated IDs never collide with persisted
// ones. Unknown entry tags are rejected rather than dropped, so a
// corrupted state file fails loudly instead of silently losing history.
//
// # Inputs
//   - state: a previously captured State. Nil yields an empty history.
//
// # Outputs
//   - *UndoHistory: the reconstructed history.
//   - error: non-nil if an entry carries an unknown tag or a missing
//     payload.
func FromState(state *State) (*UndoHistory, error) {
	h := New()
	if state == nil {
		return h, nil
	}
	h.opCounter = state.OpCounter
	for _, es := range state.UndoStack {
		e, err := untagEntry(es)
		if err != nil {
			return nil, fmt.Errorf("undo stack: %w", err)
		}
		h.undoStack = append(h.undoStack, e)
	}
	for _, es := range state.RedoStack {
		e, err := untagEntry(es)
		if err != nil {
			return nil, fmt.Errorf("redo stack: %w", err)
		}
		h.redoStack = append(h.redoStack, e)
	}
	for id, g := range state.Transactions {
		h.groups[id] = g
	}
	return h, nil
}

// MarshalState serializes a State to JSON.
func MarshalState(state *State) ([]byte, error) {
	return json.Marshal(state)
}

// UnmarshalState deserializes a State from JSON.
func UnmarshalState(data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding history state: %w", err)
	}
	return &state, nil
}

func tagEntry(e Entry) EntryState {
	switch v := e.(type) {
	case *EditOperation:
		return EntryState{Type: entryTypeEdit, Edit: v}
	case *TransactionGroup:
		return EntryState{Type: entryTypeTransaction, Group: v}
	default:
		// Entry is a closed set; this is unreachable.
		panic(fmt.Sprintf("unknown entry type %T", e))
	}
}

func untagEntry(es EntryState) (Entry, error) {
	switch es.Type {
	case entryTypeEdit:
		if es.Edit == nil {
			return nil, fmt.Errorf("%w: edit entry missing payload", ErrCorruptState)
		}
		return es.Edit, nil
	case entryTypeTransaction:
		if es.Group == nil {
			return nil, fmt.Errorf("%w: transaction entry missing payload", ErrCorruptState)
		}
		return es.Group, nil
	default:
		return nil, fmt.Errorf("%w: unknown entry type %q", ErrCorruptState, es.Type)
	}
}
