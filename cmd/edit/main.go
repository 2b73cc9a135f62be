// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command edit applies multi-file edit plans atomically and manages
// the resulting undo history.
//
// Usage:
//
//	# Apply a plan (all edits succeed or none do)
//	go run ./cmd/edit apply -plan changes.json
//
//	# Apply with interactive per-file diff preview
//	go run ./cmd/edit apply -plan changes.json -preview
//
//	# Reverse the most recent change in a saved session
//	go run ./cmd/edit undo -session session_abc
//
//	# Reverse the most recent change to one file
//	go run ./cmd/edit undo -session session_abc -path cmd/edit/main.go
//
//	# Reapply, inspect history
//	go run ./cmd/edit redo -session session_abc
//	go run ./cmd/edit history -session session_abc -limit 20
//
// A plan file looks like:
//
//	{
//	  "description": "rename helper",
//	  "edits": [
//	    {"path": "a.go", "old_content": "...", "new_content": "...", "operation": "edit"},
//	    {"path": "b.go", "new_content": "...", "operation": "create"}
//	  ]
//	}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/aleutian-edit/pkg/logging"
	"github.com/AleutianAI/aleutian-edit/services/edit/atomic"
	"github.com/AleutianAI/aleutian-edit/services/edit/history"
	"github.com/AleutianAI/aleutian-edit/services/edit/preview"
	"github.com/AleutianAI/aleutian-edit/services/edit/session"
)

// editPlan is the on-disk format of an edit batch.
type editPlan struct {
	Description string     `json:"description"`
	Edits       []planEdit `json:"edits"`
}

type planEdit struct {
	Path       string `json:"path"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
	Operation  string `json:"operation"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logLevel := os.Getenv("EDIT_LOG_LEVEL")
	logger, err := logging.Install(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "edit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch os.Args[1] {
	case "apply":
		runErr = runApply(ctx, os.Args[2:])
	case "undo":
		runErr = runUndoRedo(ctx, os.Args[2:], false)
	case "redo":
		runErr = runUndoRedo(ctx, os.Args[2:], true)
	case "history":
		runErr = runHistory(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: edit <apply|undo|redo|history> [flags]")
}

// openSession loads a saved session or creates a fresh one.
func openSession(workDir, id string) (*session.Local, error) {
	config := session.Config{WorkDir: workDir}
	if id != "" {
		return session.LoadLocal(config, id)
	}
	return session.NewLocal(config)
}

func runApply(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("apply", flag.ExitOnError)
	planPath := flags.String("plan", "", "Path to the JSON edit plan (required)")
	sessionID := flags.String("session", "", "Existing session ID to append history to")
	workDir := flags.String("workdir", ".", "Workspace root")
	withPreview := flags.Bool("preview", false, "Show a diff and confirm each edit")
	flags.Parse(args)

	if *planPath == "" {
		return fmt.Errorf("-plan is required")
	}

	data, err := os.ReadFile(*planPath)
	if err != nil {
		return fmt.Errorf("reading plan: %w", err)
	}
	var plan editPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("decoding plan: %w", err)
	}
	if len(plan.Edits) == 0 {
		return fmt.Errorf("plan has no edits")
	}

	sess, err := openSession(*workDir, *sessionID)
	if err != nil {
		return err
	}
	defer sess.Close()

	specs := make([]atomic.EditSpec, 0, len(plan.Edits))
	for _, e := range plan.Edits {
		specs = append(specs, atomic.EditSpec{
			Path:       e.Path,
			OldContent: e.OldContent,
			NewContent: e.NewContent,
			Operation:  atomic.Operation(e.Operation),
		})
	}

	if *withPreview {
		previewer := preview.New(consoleReviewer)
		specs, err = previewer.FilterEdits(ctx, sess.ID(), specs, "edit-cli")
		if err != nil {
			return err
		}
		if len(specs) == 0 {
			fmt.Println("all edits skipped")
			return nil
		}
	}

	engine := atomic.NewEngine(atomic.DefaultConfig())
	result, err := engine.ApplyEdits(ctx, specs, sess, plan.Description)
	if err != nil {
		return err
	}

	printResult(result)
	fmt.Println("session:", sess.ID())
	if !result.Success {
		return fmt.Errorf("transaction %s did not commit", result.TransactionID)
	}
	return nil
}

func runUndoRedo(ctx context.Context, args []string, redo bool) error {
	name := "undo"
	if redo {
		name = "redo"
	}
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	sessionID := flags.String("session", "", "Session ID (required)")
	path := flags.String("path", "", "Limit to the most recent change touching this file")
	workDir := flags.String("workdir", ".", "Workspace root")
	flags.Parse(args)

	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}
	sess, err := openSession(*workDir, *sessionID)
	if err != nil {
		return err
	}
	defer sess.Close()

	engine := atomic.NewEngine(atomic.DefaultConfig())
	var entry history.Entry
	if redo {
		entry, err = engine.Redo(ctx, sess, *path)
	} else {
		entry, err = engine.Undo(ctx, sess, *path)
	}
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Printf("nothing to %s\n", name)
		return nil
	}

	fmt.Printf("%s applied: %s\n", name, entry.EntryID())
	for _, p := range entry.FilePaths() {
		fmt.Println("  ", p)
	}
	return nil
}

func runHistory(args []string) error {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	sessionID := flags.String("session", "", "Session ID (required)")
	path := flags.String("path", "", "Limit to entries touching this file")
	limit := flags.Int("limit", 10, "Maximum entries to show")
	workDir := flags.String("workdir", ".", "Workspace root")
	flags.Parse(args)

	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}
	sess, err := openSession(*workDir, *sessionID)
	if err != nil {
		return err
	}

	hist := sess.UndoHistory()
	entries := hist.History(*path, *limit)
	if len(entries) == 0 {
		fmt.Println("no history")
		return nil
	}

	for _, entry := range entries {
		switch v := entry.(type) {
		case *history.EditOperation:
			fmt.Printf("%s  %s  %s (%s)\n",
				v.Timestamp.Format("2006-01-02 15:04:05"), v.ID, v.FilePath, v.ToolName)
		case *history.TransactionGroup:
			fmt.Printf("%s  %s  %d files: %s\n",
				v.Timestamp.Format("2006-01-02 15:04:05"), v.ID, len(v.Edits), v.Description)
		}
	}
	fmt.Printf("undo available: %d, redo available: %d\n",
		hist.UndoCount(*path), hist.RedoCount(*path))
	return nil
}

// consoleReviewer shows the rendered diff on stdout and reads a
// one-letter decision from stdin.
func consoleReviewer(ctx context.Context, req *preview.Request) (preview.Decision, error) {
	fmt.Printf("--- %s\n%s", req.FilePath, req.Diff)
	fmt.Print("[a]pply / [s]kip / [c]ancel? ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return preview.DecisionCancel, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "a", "apply", "y", "":
		return preview.DecisionApply, nil
	case "s", "skip":
		return preview.DecisionSkip, nil
	default:
		return preview.DecisionCancel, nil
	}
}

func printResult(result *atomic.Result) {
	if result.Success {
		fmt.Println("committed", result.TransactionID)
	} else if result.RolledBack {
		fmt.Println("rolled back", result.TransactionID)
	} else {
		fmt.Println("failed", result.TransactionID)
	}
	for _, p := range result.FilesCreated {
		fmt.Println("  created ", p)
	}
	for _, p := range result.FilesModified {
		fmt.Println("  modified", p)
	}
	for _, p := range result.FilesDeleted {
		fmt.Println("  deleted ", p)
	}
	for _, e := range result.Errors {
		fmt.Println("  error:", e)
	}
}
