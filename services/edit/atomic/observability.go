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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const editTracerName = "aleutian.edit"

// Tracer provides OpenTelemetry tracing for edit engine operations.
//
// # Description
//
// Wraps the OpenTelemetry tracer with engine-specific span creation and
// attribute management. When disabled, returns noop spans for zero
// overhead.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new edit engine tracer.
//
// # Inputs
//
//   - logger: Logger for structured logging. Uses slog.Default() if nil.
//   - enabled: Whether tracing is enabled. When false, uses noop spans.
//
// # Outputs
//
//   - *Tracer: Ready-to-use tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(editTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartCommit starts a span for a transaction commit.
//
// # Inputs
//
//   - ctx: Parent context for span creation.
//   - txn: The transaction being committed.
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call End() when done.
func (t *Tracer) StartCommit(ctx context.Context, txn *Transaction) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "edit.commit",
		trace.WithAttributes(
			attribute.String("txn.id", txn.ID),
			attribute.Int("txn.files", len(txn.Edits)),
			attribute.String("txn.description", truncateForTrace(txn.Description, 80)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.DebugContext(ctx, "committing transaction",
		slog.String("transaction_id", txn.ID),
		slog.Int("files", len(txn.Edits)),
	)

	return ctx, span
}

// EndCommit completes a commit span.
//
// # Inputs
//
//   - span: The span to end.
//   - result: The commit outcome (may be nil on misuse errors).
//   - err: Error if the commit failed at the engine level.
func (t *Tracer) EndCommit(span trace.Span, result *Result, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if result == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	span.SetAttributes(
		attribute.Bool("txn.success", result.Success),
		attribute.Bool("txn.rolled_back", result.RolledBack),
		attribute.Int("txn.errors", len(result.Errors)),
	)
	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "transaction not committed")
	}
}

// StartUndo starts a span for an undo or redo operation.
//
// # Inputs
//
//   - ctx: Parent context for span creation.
//   - direction: "undo" or "redo".
//   - path: The path scope, empty for "most recent overall".
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call End() when done.
func (t *Tracer) StartUndo(ctx context.Context, direction, path string) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "edit."+direction,
		trace.WithAttributes(
			attribute.String("undo.path", truncateForTrace(path, 120)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndUndo completes an undo or redo span.
//
// # Inputs
//
//   - span: The span to end.
//   - entry: The history entry that was restored (nil if none matched
//     or the restore failed).
//   - err: Error if the operation failed.
func (t *Tracer) EndUndo(span trace.Span, entry interface{ EntryID() string }, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if entry != nil {
		span.SetAttributes(attribute.String("undo.entry_id", entry.EntryID()))
	} else {
		span.SetAttributes(attribute.Bool("undo.no_match", true))
	}
	span.SetStatus(codes.Ok, "")
}

// StartFileOp starts a span for a single file operation.
//
// # Inputs
//
//   - ctx: Parent context for span creation.
//   - operation: The operation kind (create, edit, delete).
//   - path: The target file path.
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call End() when done.
func (t *Tracer) StartFileOp(ctx context.Context, operation, path string) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "edit.file."+operation,
		trace.WithAttributes(
			attribute.String("file.path", truncateForTrace(path, 120)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndFileOp completes a file operation span.
//
// # Inputs
//
//   - span: The span to end.
//   - err: Error if the operation failed.
func (t *Tracer) EndFileOp(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RecordStateTransition records a transaction state change as an event
// on the active span.
//
// # Inputs
//
//   - ctx: Context carrying the active span.
//   - txID: The transaction identifier.
//   - from: Previous state.
//   - to: New state.
func (t *Tracer) RecordStateTransition(ctx context.Context, txID string, from, to Status) {
	if !t.enabled {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent("state_transition", trace.WithAttributes(
		attribute.String("txn.id", txID),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

// truncateForTrace truncates a string for use as a span attribute.
func truncateForTrace(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Need at least 4 chars to add "..." suffix (1 char + "...")
	if maxLen < 4 {
		if maxLen <= 0 {
			return ""
		}
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// LoggerWithTrace returns a logger with trace context fields.
//
// # Description
//
// Extracts trace_id and span_id from the context and adds them to the
// logger for correlation with distributed traces.
//
// # Inputs
//
//   - ctx: Context that may contain trace information.
//   - logger: Base logger to extend.
//
// # Outputs
//
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
