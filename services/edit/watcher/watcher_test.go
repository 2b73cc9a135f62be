// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventCollector gathers change events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (c *eventCollector) collect(ev ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChangeEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) forPath(path string) []ChangeEvent {
	var out []ChangeEvent
	for _, ev := range c.snapshot() {
		if ev.Path == path {
			out = append(out, ev)
		}
	}
	return out
}

func startWatcher(t *testing.T, dir string) (*Watcher, *eventCollector) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Debounce = 100 * time.Millisecond
	w, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	collector := &eventCollector{}
	w.OnChange(collector.collect)
	require.NoError(t, w.Track(dir))
	w.Start()

	// Give the notification backend a moment to arm.
	time.Sleep(50 * time.Millisecond)
	return w, collector
}

func TestWatcher_ReportsCreate(t *testing.T) {
	dir := t.TempDir()
	_, collector := startWatcher(t, dir)

	path := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	require.Eventually(t, func() bool {
		return len(collector.forPath(path)) > 0
	}, 5*time.Second, 20*time.Millisecond)

	events := collector.forPath(path)
	assert.Equal(t, ChangeCreated, events[0].Kind)
}

func TestWatcher_ReportsDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, collector := startWatcher(t, dir)
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		events := collector.forPath(path)
		return len(events) > 0 && events[len(events)-1].Kind == ChangeDeleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_DebouncesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "busy.txt")
	require.NoError(t, os.WriteFile(path, []byte("v0"), 0644))

	_, collector := startWatcher(t, dir)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(collector.forPath(path)) > 0
	}, 5*time.Second, 20*time.Millisecond)

	// Let any stragglers settle, then check the burst collapsed.
	time.Sleep(300 * time.Millisecond)
	events := collector.forPath(path)
	assert.Less(t, len(events), 10, "expected the write burst to be debounced")
	assert.Equal(t, ChangeModified, events[len(events)-1].Kind)
}

func TestWatcher_IgnoresEditorDroppings(t *testing.T) {
	dir := t.TempDir()
	_, collector := startWatcher(t, dir)

	swap := filepath.Join(dir, "file.swp")
	require.NoError(t, os.WriteFile(swap, []byte("x"), 0644))

	real := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0644))

	require.Eventually(t, func() bool {
		return len(collector.forPath(real)) > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Empty(t, collector.forPath(swap))
}

func TestWatcher_CloseStopsDelivery(t *testing.T) {
	dir := t.TempDir()
	w, collector := startWatcher(t, dir)

	require.NoError(t, w.Close())
	// Close is idempotent.
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, collector.snapshot())
}

func TestWatcher_TrackMissingPath(t *testing.T) {
	w, err := New(DefaultConfig())
	require.NoError(t, err)
	defer w.Close()

	err = w.Track(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
