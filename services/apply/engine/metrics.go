// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/taskapply/services/apply/patch"
)

// Package-level tracer and meter for apply runs.
var (
	tracer = otel.Tracer("taskapply.engine")
	meter  = otel.Meter("taskapply.engine")
)

// Metrics for apply runs.
var (
	entriesTotal   metric.Int64Counter
	conflictsTotal metric.Int64Counter
	applyLatency   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		entriesTotal, err = meter.Int64Counter(
			"taskapply_entries_total",
			metric.WithDescription("Total number of diff entries processed, by operation and final state"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		conflictsTotal, err = meter.Int64Counter(
			"taskapply_conflicts_total",
			metric.WithDescription("Total number of conflict blocks written"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		applyLatency, err = meter.Float64Histogram(
			"taskapply_apply_duration_seconds",
			metric.WithDescription("Duration of a full apply run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startApplySpan creates a span covering one apply run.
func startApplySpan(ctx context.Context, root string, entries int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.Apply",
		trace.WithAttributes(
			attribute.String("apply.root", root),
			attribute.Int("apply.entries", entries),
		),
	)
}

// startEntrySpan creates a span covering one entry.
func startEntrySpan(ctx context.Context, entry patch.Entry) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.applyEntry",
		trace.WithAttributes(
			attribute.Int("entry.index", entry.Index),
			attribute.String("entry.path", entry.Path),
			attribute.String("entry.op", entry.Kind().String()),
		),
	)
}

// setEntrySpanResult records the result of one entry on its span.
func setEntrySpanResult(span trace.Span, res FileResult, err error) {
	span.SetAttributes(
		attribute.String("entry.state", string(res.State)),
		attribute.Int("entry.hunks_conflicted", res.HunksConflicted),
		attribute.Int("entry.bytes_written", res.BytesWritten),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// recordEntryMetrics records metrics for one processed entry.
func recordEntryMetrics(ctx context.Context, res FileResult) {
	if err := initMetrics(); err != nil {
		return
	}

	entriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", res.Op.String()),
		attribute.String("state", string(res.State)),
	))
	if res.State == StateConflicted {
		conflictsTotal.Add(ctx, int64(max(res.HunksConflicted, 1)))
	}
}

// recordApplyMetrics records the duration of a finished run.
func recordApplyMetrics(ctx context.Context, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}

	applyLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
