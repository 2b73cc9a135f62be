// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher reports file changes in tracked directories so the
// agent can detect out-of-band edits that would invalidate a
// transaction's optimistic content checks.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind is the kind of filesystem change observed.
type ChangeKind string

const (
	// ChangeCreated means the file appeared.
	ChangeCreated ChangeKind = "created"

	// ChangeModified means the file's content changed.
	ChangeModified ChangeKind = "modified"

	// ChangeDeleted means the file was removed or renamed away.
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is one debounced file change.
type ChangeEvent struct {
	// Path is the changed file's path.
	Path string

	// Kind is the kind of change. Rapid successive changes collapse to
	// the most recent kind.
	Kind ChangeKind

	// Timestamp records when the change was last observed.
	Timestamp time.Time
}

// Callback receives debounced change events. Called from the watcher's
// own goroutine; implementations must not block for long.
type Callback func(ChangeEvent)

// Config configures a Watcher.
type Config struct {
	// Debounce is how long a path must stay quiet before its change is
	// reported. Rapid write bursts (editors, formatters) collapse to
	// one event. Zero means the default of 250ms.
	Debounce time.Duration

	// IgnorePatterns are base-name patterns to skip. A leading "*"
	// matches a suffix; anything else matches the base name exactly.
	// Nil means the defaults.
	IgnorePatterns []string
}

// defaultIgnorePatterns skips VCS metadata, editor droppings, and the
// engine's own state directory.
var defaultIgnorePatterns = []string{
	".git", ".aleutian", "node_modules", ".DS_Store",
	"*.swp", "*.swo", "*~", "*.tmp",
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:       250 * time.Millisecond,
		IgnorePatterns: defaultIgnorePatterns,
	}
}

// Watcher observes tracked paths through OS file notifications and
// delivers debounced change events to registered callbacks.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Watcher struct {
	config    Config
	fw        *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []Callback
	pending   map[string]*time.Timer
	latest    map[string]ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// New creates a watcher. Call Track to add paths, OnChange to register
// callbacks, then Start.
func New(config Config) (*Watcher, error) {
	if config.Debounce == 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = defaultIgnorePatterns
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:  config,
		fw:      fw,
		pending: make(map[string]*time.Timer),
		latest:  make(map[string]ChangeEvent),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "watcher.Watcher"),
	}, nil
}

// Track adds a directory (or single file) to the watch set. Watching a
// directory reports changes to its direct children.
func (w *Watcher) Track(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if err := w.fw.Add(abs); err != nil {
		return fmt.Errorf("tracking %s: %w", abs, err)
	}
	w.logger.Debug("tracking path", "path", abs)
	return nil
}

// OnChange registers a callback for debounced change events.
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins delivering events. Returns immediately; events flow on
// a background goroutine until Close.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watcher and cancels any pending debounce timers.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()

		w.mu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle maps a raw notification to a ChangeEvent and arms or resets
// the path's debounce timer.
func (w *Watcher) handle(ev fsnotify.Event) {
	var kind ChangeKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = ChangeCreated
	case ev.Has(fsnotify.Write):
		kind = ChangeModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = ChangeDeleted
	default:
		return
	}

	if w.shouldIgnore(ev.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.latest[ev.Name] = ChangeEvent{
		Path:      ev.Name,
		Kind:      kind,
		Timestamp: time.Now(),
	}
	if timer, ok := w.pending[ev.Name]; ok {
		timer.Reset(w.config.Debounce)
		return
	}
	path := ev.Name
	w.pending[path] = time.AfterFunc(w.config.Debounce, func() {
		w.fire(path)
	})
}

// fire delivers the latest event for a quiet path.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	event, ok := w.latest[path]
	delete(w.latest, path)
	delete(w.pending, path)
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if !ok {
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	for _, cb := range callbacks {
		cb(event)
	}
}

// shouldIgnore applies the ignore patterns to a path's base name.
func (w *Watcher) shouldIgnore(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.config.IgnorePatterns {
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(name, pattern[1:]) {
				return true
			}
			continue
		}
		if name == pattern {
			return true
		}
	}
	return false
}
