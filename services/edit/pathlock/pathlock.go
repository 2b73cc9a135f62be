// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathlock serializes file operations that touch the same
// canonicalized path while letting unrelated paths proceed concurrently.
package pathlock

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// waiter is one link in a path's wait chain. Its done channel is closed
// when the waiter's turn is over, releasing the next link.
type waiter struct {
	done chan struct{}
}

// PathLock is an in-process mutex keyed by canonicalized file path.
//
// # Description
//
// Each path maps to a chain of waiters. Acquire installs the caller as the
// new chain tail and blocks until the previous tail signals completion.
// When the last holder releases, the path's entry is removed so the map
// never accumulates resolved chains.
//
// Conflicts are only serialized within one running process; this is not an
// OS-level file lock.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type PathLock struct {
	mu     sync.Mutex
	chains map[string]*waiter
	logger *slog.Logger
}

// New creates an empty PathLock.
func New() *PathLock {
	return &PathLock{
		chains: make(map[string]*waiter),
		logger: slog.Default().With("component", "edit.PathLock"),
	}
}

// Canonical returns the canonical form of a path used as the lock key.
//
// Relative paths are resolved against the working directory so that two
// spellings of the same file contend for the same lock.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// Acquire blocks until every earlier holder of the path has released.
//
// # Description
//
// Returns a release function that must be called exactly once (calling it
// again is a no-op). If the context is cancelled while waiting, the
// caller's slot in the chain is handed off to a background goroutine that
// signals completion once the predecessor releases, so later waiters are
// never stranded and mutual exclusion is never violated.
//
// # Inputs
//
//   - ctx: Context for cancellation while waiting.
//   - path: Path to lock. Canonicalized internally.
//
// # Outputs
//
//   - func(): Release function. Nil when err is non-nil.
//   - error: ctx.Err() if the wait was abandoned.
func (l *PathLock) Acquire(ctx context.Context, path string) (func(), error) {
	key := Canonical(path)

	w := &waiter{done: make(chan struct{})}
	l.mu.Lock()
	prev := l.chains[key]
	l.chains[key] = w
	l.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			// Abandon the wait but keep the chain sound: our slot still
			// signals once the predecessor is done.
			go func() {
				<-prev.done
				l.release(key, w)
			}()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, w) })
	}, nil
}

// AcquireAll locks every path of a transaction in ascending canonical
// order.
//
// # Description
//
// Paths are canonicalized, deduplicated, and sorted before acquisition.
// Two transactions sharing a subset of files resolve the same total order,
// so neither can hold lock A waiting for B while the other holds B waiting
// for A. On cancellation mid-acquisition, every lock already acquired is
// released in reverse order.
//
// # Inputs
//
//   - ctx: Context for cancellation while waiting.
//   - paths: Paths to lock, in any order, duplicates allowed.
//
// # Outputs
//
//   - func(): Releases all locks in reverse acquisition order. Nil when
//     err is non-nil.
//   - error: ctx.Err() if any wait was abandoned.
func (l *PathLock) AcquireAll(ctx context.Context, paths []string) (func(), error) {
	keys := SortedCanonical(paths)

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, key := range keys {
		release, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	var once sync.Once
	return func() {
		once.Do(releaseAll)
	}, nil
}

// Locked reports whether any holder or waiter is registered for the path.
//
// Intended for diagnostics and tests; the answer may be stale by the time
// the caller acts on it.
func (l *PathLock) Locked(path string) bool {
	key := Canonical(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.chains[key]
	return ok
}

// SortedCanonical returns the canonicalized, deduplicated, ascending-order
// key set for a group of paths. This is the exact acquisition order used
// by AcquireAll.
func SortedCanonical(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key := Canonical(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// release closes the waiter's done channel and removes the path entry if
// the waiter is still the registered tail.
func (l *PathLock) release(key string, w *waiter) {
	close(w.done)
	l.mu.Lock()
	if l.chains[key] == w {
		delete(l.chains, key)
	}
	l.mu.Unlock()
}
