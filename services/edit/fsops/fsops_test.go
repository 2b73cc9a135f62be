// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFS_WriteRead(t *testing.T) {
	fs := NewOSFS()
	path := filepath.Join(t.TempDir(), "a.txt")

	require.NoError(t, fs.WriteFile(path, "hello\n"))

	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", got)
}

func TestOSFS_WriteCreatesParents(t *testing.T) {
	fs := NewOSFS()
	path := filepath.Join(t.TempDir(), "deep", "nested", "dir", "b.txt")

	require.NoError(t, fs.WriteFile(path, "content"))
	assert.True(t, fs.Exists(path))
}

func TestOSFS_WriteOverwrites(t *testing.T) {
	fs := NewOSFS()
	path := filepath.Join(t.TempDir(), "c.txt")

	require.NoError(t, fs.WriteFile(path, "first"))
	require.NoError(t, fs.WriteFile(path, "second"))

	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestOSFS_WriteLeavesNoTempFiles(t *testing.T) {
	fs := NewOSFS()
	dir := t.TempDir()

	require.NoError(t, fs.WriteFile(filepath.Join(dir, "d.txt"), "x"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d.txt", entries[0].Name())
}

func TestOSFS_Remove(t *testing.T) {
	fs := NewOSFS()
	path := filepath.Join(t.TempDir(), "e.txt")
	require.NoError(t, fs.WriteFile(path, "bye"))

	require.NoError(t, fs.Remove(path))
	assert.False(t, fs.Exists(path))
}

func TestOSFS_ReadMissing(t *testing.T) {
	fs := NewOSFS()
	_, err := fs.ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestOSFS_Exists(t *testing.T) {
	fs := NewOSFS()
	dir := t.TempDir()

	assert.True(t, fs.Exists(dir))
	assert.False(t, fs.Exists(filepath.Join(dir, "nope")))
}
