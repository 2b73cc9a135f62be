// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package atomic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for edit engine metrics.
var meter = otel.Meter("aleutian.edit")

// Metric instruments for edit transactions.
var (
	commitTotal         metric.Int64Counter
	rollbackTotal       metric.Int64Counter
	validationFailTotal metric.Int64Counter
	rollbackFailTotal   metric.Int64Counter
	undoTotal           metric.Int64Counter
	transactionDuration metric.Float64Histogram
	editsApplied        metric.Int64Histogram
	fileOpDuration      metric.Float64Histogram
	fileOpErrors        metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
// Set by the Engine on initialization.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commitTotal, err = meter.Int64Counter(
			"edit_commit_total",
			metric.WithDescription("Total number of committed edit transactions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"edit_rollback_total",
			metric.WithDescription("Total number of rolled-back edit transactions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validationFailTotal, err = meter.Int64Counter(
			"edit_validation_failure_total",
			metric.WithDescription("Total number of transactions rejected by validation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackFailTotal, err = meter.Int64Counter(
			"edit_rollback_failure_total",
			metric.WithDescription("Total number of edits whose reversal failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		undoTotal, err = meter.Int64Counter(
			"edit_undo_total",
			metric.WithDescription("Total number of undo and redo operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		transactionDuration, err = meter.Float64Histogram(
			"edit_transaction_duration_seconds",
			metric.WithDescription("Duration of edit transactions in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		editsApplied, err = meter.Int64Histogram(
			"edit_transaction_files",
			metric.WithDescription("Number of files per edit transaction"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileOpDuration, err = meter.Float64Histogram(
			"edit_file_operation_duration_seconds",
			metric.WithDescription("Duration of individual file operations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileOpErrors, err = meter.Int64Counter(
			"edit_file_operation_errors_total",
			metric.WithDescription("Total number of file operation errors"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCommit records a successful transaction commit.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the commit took.
//   - files: Number of edits applied.
func recordCommit(ctx context.Context, duration time.Duration, files int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", "committed"))

	commitTotal.Add(ctx, 1, attrs)
	transactionDuration.Record(ctx, duration.Seconds(), attrs)
	editsApplied.Record(ctx, int64(files), attrs)
}

// recordRollback records a transaction that was reversed after an
// apply failure.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the attempt took.
//   - files: Number of edits in the transaction.
func recordRollback(ctx context.Context, duration time.Duration, files int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", "rolled_back"))

	rollbackTotal.Add(ctx, 1)
	transactionDuration.Record(ctx, duration.Seconds(), attrs)
	editsApplied.Record(ctx, int64(files), attrs)
}

// recordValidationFail records a transaction rejected before any disk
// mutation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - violations: Number of violations found.
func recordValidationFail(ctx context.Context, violations int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	validationFailTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("violations", violations),
	))
}

// recordRollbackFailure records a single edit whose reversal failed.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func recordRollbackFailure(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	rollbackFailTotal.Add(ctx, 1)
}

// recordUndo records an undo or redo operation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - direction: "undo" or "redo".
func recordUndo(ctx context.Context, direction string) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	undoTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
	))
}

// recordFileOp records one file operation during the apply phase.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - operation: The operation kind (create, edit, delete).
//   - duration: How long the operation took.
//   - opErr: Error if the operation failed (nil on success).
func recordFileOp(ctx context.Context, operation string, duration time.Duration, opErr error) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	fileOpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
	if opErr != nil {
		fileOpErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}
