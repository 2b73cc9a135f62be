// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package preview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-edit/services/edit/atomic"
)

func staticReviewer(decision Decision) Reviewer {
	return func(ctx context.Context, req *Request) (Decision, error) {
		return decision, nil
	}
}

func TestPreview_DisabledAutoApplies(t *testing.T) {
	p := New(staticReviewer(DecisionCancel))
	p.SetEnabled(false, "")

	decision, err := p.Preview(context.Background(), "s1", "/tmp/a.txt", "old", "new", "edit")
	require.NoError(t, err)
	assert.Equal(t, DecisionApply, decision)
}

func TestPreview_PerSessionToggle(t *testing.T) {
	p := New(staticReviewer(DecisionApply))

	p.SetEnabled(false, "quiet")
	assert.False(t, p.Enabled("quiet"))
	assert.True(t, p.Enabled("other"))

	// Global off overrides a per-session on.
	p.SetEnabled(true, "quiet")
	p.SetEnabled(false, "")
	assert.False(t, p.Enabled("quiet"))
}

func TestPreview_IdenticalContentSkips(t *testing.T) {
	called := false
	p := New(func(ctx context.Context, req *Request) (Decision, error) {
		called = true
		return DecisionApply, nil
	})

	decision, err := p.Preview(context.Background(), "s1", "/tmp/a.txt", "same", "same", "edit")
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, decision)
	assert.False(t, called)
}

func TestPreview_ReviewerSeesRenderedDiff(t *testing.T) {
	var got *Request
	p := New(func(ctx context.Context, req *Request) (Decision, error) {
		got = req
		return DecisionApply, nil
	})

	decision, err := p.Preview(context.Background(), "s1", "/tmp/dir/a.txt",
		"line one\nline two\n", "line one\nline 2\n", "edit")
	require.NoError(t, err)
	assert.Equal(t, DecisionApply, decision)

	require.NotNil(t, got)
	assert.Equal(t, "a.txt", got.FileName())
	assert.NotEmpty(t, got.ID)
	assert.Contains(t, got.Diff, "- line two")
	assert.Contains(t, got.Diff, "+ line 2")
	assert.Contains(t, got.Diff, "  line one")
}

func TestPreview_CancelReturnsSentinel(t *testing.T) {
	p := New(staticReviewer(DecisionCancel))

	decision, err := p.Preview(context.Background(), "s1", "/tmp/a.txt", "old", "new", "edit")
	assert.Equal(t, DecisionCancel, decision)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreviewCancelled)
	assert.Contains(t, err.Error(), "a.txt")
}

func TestFilterEdits_DropsSkippedKeepsApproved(t *testing.T) {
	p := New(func(ctx context.Context, req *Request) (Decision, error) {
		if req.FilePath == "/tmp/skip.txt" {
			return DecisionSkip, nil
		}
		return DecisionApply, nil
	})

	edits := []atomic.EditSpec{
		{Path: "/tmp/keep.txt", OldContent: "a", NewContent: "b"},
		{Path: "/tmp/skip.txt", OldContent: "c", NewContent: "d"},
		{Path: "/tmp/also.txt", OldContent: "e", NewContent: "f"},
	}

	approved, err := p.FilterEdits(context.Background(), "s1", edits, "multiedit")
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, "/tmp/keep.txt", approved[0].Path)
	assert.Equal(t, "/tmp/also.txt", approved[1].Path)
}

func TestFilterEdits_CancelAbortsBatch(t *testing.T) {
	p := New(func(ctx context.Context, req *Request) (Decision, error) {
		if req.FilePath == "/tmp/second.txt" {
			return DecisionCancel, nil
		}
		return DecisionApply, nil
	})

	edits := []atomic.EditSpec{
		{Path: "/tmp/first.txt", OldContent: "a", NewContent: "b"},
		{Path: "/tmp/second.txt", OldContent: "c", NewContent: "d"},
		{Path: "/tmp/third.txt", OldContent: "e", NewContent: "f"},
	}

	approved, err := p.FilterEdits(context.Background(), "s1", edits, "multiedit")
	assert.Nil(t, approved)
	assert.ErrorIs(t, err, ErrPreviewCancelled)
}
