// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fsops is the filesystem boundary of the edit engine. All content
// is treated as decoded text.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
)

// FS abstracts the file operations the engine performs, so tests can
// inject failures at exact points in a transaction.
type FS interface {
	// ReadFile returns the full content of the file at path.
	ReadFile(path string) (string, error)

	// WriteFile replaces the content of the file at path, creating parent
	// directories as needed.
	WriteFile(path string, content string) error

	// Remove deletes the file at path.
	Remove(path string) error

	// Exists reports whether a file or directory exists at path.
	Exists(path string) bool

	// MkdirAll creates the directory at path along with any missing
	// parents.
	MkdirAll(path string) error
}

// OSFS implements FS against the real filesystem.
//
// Writes go through a temp file in the target directory followed by a
// rename, so a crash mid-write never leaves a half-written file behind.
type OSFS struct{}

// NewOSFS returns the real-filesystem implementation.
func NewOSFS() *OSFS {
	return &OSFS{}
}

// ReadFile returns the file's content as a string.
func (OSFS) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content to path, creating parent directories first.
func (OSFS) WriteFile(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".edit-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Remove deletes the file at path.
func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

// Exists reports whether path exists.
func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MkdirAll creates path and any missing parents.
func (OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}
