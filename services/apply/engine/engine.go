// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine applies parsed diff entries to a working tree.
//
// # Description
//
// Entries run strictly in payload order. Each file ends in one of two
// states: cleanly applied, or rewritten with conflict markers. Every write
// goes through a temporary file and a rename, so no file is ever observed
// half-written. There is no rollback across files.
//
// # Thread Safety
//
// An Engine holds no per-run state and may be shared, but callers must not
// run two applies against the same tree at once.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/patch"
	"github.com/AleutianAI/taskapply/services/apply/worktree"
)

// =============================================================================
// Options
// =============================================================================

// Options configures an Engine.
type Options struct {
	// FileMode is the permission for newly created files. Rewritten files
	// keep their existing mode.
	FileMode os.FileMode

	// DirMode is the permission for created parent directories.
	DirMode os.FileMode

	// MaxOffset bounds how far from its recorded line a hunk may be found.
	// Zero searches the whole file.
	MaxOffset int

	// Labels name the sides of conflict blocks.
	Labels conflict.Labels

	// BeforeEntry, when set, runs before each entry. A non-nil error stops
	// the run before that entry is touched.
	BeforeEntry func(index int, entry patch.Entry) error
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		FileMode: 0o644,
		DirMode:  0o755,
		Labels:   conflict.DefaultLabels(),
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine applies diff entries to working trees.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Engine. Zero modes fall back to the defaults and a nil
// logger to slog.Default().
func New(opts Options, logger *slog.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.FileMode == 0 {
		opts.FileMode = defaults.FileMode
	}
	if opts.DirMode == 0 {
		opts.DirMode = defaults.DirMode
	}
	if opts.MaxOffset < 0 {
		opts.MaxOffset = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// Apply applies entries to tree in order.
//
// # Description
//
// Every entry is attempted unless a file system error occurs, which stops
// the run immediately. Files already written stay written. The context
// carries telemetry only; a started run is not cancelled.
//
// # Inputs
//
//   - ctx: parent context for spans and metrics.
//   - tree: the located working tree.
//   - entries: parsed entries, in payload order.
//
// # Outputs
//
//   - *Outcome: always non-nil, describing every entry processed.
//   - error: nil on a clean run; *conflict.MergeConflictError when any path
//     was left conflicted; *IOError on a file system failure; or the
//     BeforeEntry error.
func (e *Engine) Apply(ctx context.Context, tree *worktree.Tree, entries []patch.Entry) (*Outcome, error) {
	start := time.Now()
	ctx, span := startApplySpan(ctx, tree.Root, len(entries))
	defer span.End()

	outcome := newOutcome(tree.Root)
	e.logger.Info("Applying diff entries",
		slog.String("run_id", outcome.ID),
		slog.String("root", tree.Root),
		slog.Int("entries", len(entries)),
	)

	deleted := make(map[string]int)
	var runErr error
	for i, entry := range entries {
		if e.opts.BeforeEntry != nil {
			if err := e.opts.BeforeEntry(i, entry); err != nil {
				runErr = fmt.Errorf("stopped before entry %d (%s): %w", entry.Index, entry.Path, err)
				break
			}
		}

		res, err := e.applyEntry(ctx, tree, entry, deleted)
		outcome.Files = append(outcome.Files, res)
		if err != nil {
			runErr = err
			break
		}

		switch {
		case entry.Kind() == patch.KindDelete && res.State == StateApplied:
			deleted[entry.Path] = entry.Index
		case entry.Kind() != patch.KindDelete && res.State != StateConflicted:
			delete(deleted, entry.Path)
		}
	}

	outcome.finish(time.Since(start))

	switch {
	case runErr != nil:
		span.RecordError(runErr)
		recordApplyMetrics(ctx, outcome.Duration, "error")
		e.logger.Error("Apply stopped",
			slog.String("run_id", outcome.ID),
			slog.Int("processed", len(outcome.Files)),
			slog.String("error", runErr.Error()),
		)
		return outcome, runErr

	case outcome.HasConflicts():
		recordApplyMetrics(ctx, outcome.Duration, "conflict")
		e.logger.Warn("Apply finished with conflicts",
			slog.String("run_id", outcome.ID),
			slog.Int("applied", len(outcome.Applied)),
			slog.Int("conflicted", len(outcome.Conflicted)),
		)
		return outcome, &conflict.MergeConflictError{Paths: append([]string(nil), outcome.Conflicted...)}

	default:
		recordApplyMetrics(ctx, outcome.Duration, "success")
		e.logger.Info("Apply finished",
			slog.String("run_id", outcome.ID),
			slog.Int("applied", len(outcome.Applied)),
			slog.Int("unchanged", len(outcome.Unchanged)),
			slog.Duration("duration", outcome.Duration),
		)
		return outcome, nil
	}
}

// applyEntry applies one entry and returns its result.
func (e *Engine) applyEntry(ctx context.Context, tree *worktree.Tree, entry patch.Entry, deleted map[string]int) (FileResult, error) {
	ctx, span := startEntrySpan(ctx, entry)
	defer span.End()

	res := FileResult{Index: entry.Index, Path: entry.Path, Op: entry.Kind()}

	var err error
	if parent, index, ok := deletedAncestor(entry.Path, deleted); ok {
		res.State = StateConflicted
		res.Reason = fmt.Sprintf("parent path %s was deleted by entry %d", parent, index)
	} else {
		var abs string
		abs, err = tree.Abs(entry.Path)
		if err != nil {
			err = ioError("resolve", entry.Path, err)
		} else {
			switch op := entry.Op.(type) {
			case patch.Create:
				err = e.applyCreate(abs, op, &res)
			case patch.Modify:
				err = e.applyModify(abs, op, &res)
			case patch.Delete:
				err = e.applyDelete(tree.Root, abs, op, &res)
			default:
				err = ioError("resolve", entry.Path, fmt.Errorf("unsupported operation %T", entry.Op))
			}
		}
	}
	if err != nil {
		res.State = StateFailed
		res.Reason = err.Error()
	}

	setEntrySpanResult(span, res, err)
	recordEntryMetrics(ctx, res)
	e.logEntry(res)
	return res, err
}

func (e *Engine) logEntry(res FileResult) {
	attrs := []any{
		slog.Int("index", res.Index),
		slog.String("path", res.Path),
		slog.String("op", res.Op.String()),
		slog.String("state", string(res.State)),
	}
	switch res.State {
	case StateConflicted:
		e.logger.Warn("Entry conflicted", append(attrs, slog.String("reason", res.Reason))...)
	case StateFailed:
		e.logger.Error("Entry failed", append(attrs, slog.String("error", res.Reason))...)
	default:
		e.logger.Debug("Entry applied", append(attrs, slog.Int("bytes_written", res.BytesWritten))...)
	}
}

// =============================================================================
// Operations
// =============================================================================

func (e *Engine) applyCreate(abs string, op patch.Create, res *FileResult) error {
	current, mode, exists, err := readCurrent(abs, res.Path)
	if err != nil {
		return err
	}

	if !exists {
		if err := os.MkdirAll(filepath.Dir(abs), e.opts.DirMode); err != nil {
			return ioError("mkdir", res.Path, err)
		}
		if err := e.write(abs, op.Content, e.opts.FileMode, res); err != nil {
			return err
		}
		res.State = StateApplied
		return nil
	}

	if current == op.Content {
		res.State = StateUnchanged
		return nil
	}

	merged := conflict.Splice(patch.SplitLines(current), patch.SplitLines(op.Content), e.opts.Labels)
	if err := e.write(abs, patch.JoinLines(merged), mode, res); err != nil {
		return err
	}
	res.State = StateConflicted
	res.HunksConflicted = 1
	res.Reason = "file already exists with different content"
	return nil
}

func (e *Engine) applyModify(abs string, op patch.Modify, res *FileResult) error {
	current, mode, exists, err := readCurrent(abs, res.Path)
	if err != nil {
		return err
	}
	r := reconcile(patch.SplitLines(current), op.Hunks, e.opts.MaxOffset, e.opts.Labels)
	res.HunksApplied = r.applied
	res.HunksSkipped = r.skipped
	res.HunksConflicted = r.conflicted

	merged := patch.JoinLines(r.lines)
	if merged == current && (exists || r.conflicted == 0) {
		res.State = StateUnchanged
		return nil
	}
	if !exists {
		mode = e.opts.FileMode
		if err := os.MkdirAll(filepath.Dir(abs), e.opts.DirMode); err != nil {
			return ioError("mkdir", res.Path, err)
		}
	}
	if err := e.write(abs, merged, mode, res); err != nil {
		return err
	}

	switch {
	case r.conflicted > 0 && !exists:
		res.State = StateConflicted
		res.Reason = "file to modify does not exist"
	case r.conflicted > 0:
		res.State = StateConflicted
		res.Reason = fmt.Sprintf("%d of %d hunks did not match local content", r.conflicted, len(op.Hunks))
	default:
		res.State = StateApplied
	}
	return nil
}

func (e *Engine) applyDelete(root, abs string, op patch.Delete, res *FileResult) error {
	current, mode, exists, err := readCurrent(abs, res.Path)
	if err != nil {
		return err
	}
	if !exists {
		res.State = StateUnchanged
		return nil
	}

	if current != op.Expected {
		merged := conflict.Block(patch.SplitLines(current), nil, e.opts.Labels)
		if err := e.write(abs, patch.JoinLines(merged), mode, res); err != nil {
			return err
		}
		res.State = StateConflicted
		res.HunksConflicted = 1
		res.Reason = "local content differs from the content the diff deletes"
		return nil
	}

	if err := os.Remove(abs); err != nil {
		return ioError("remove", res.Path, err)
	}
	pruneEmptyDirs(root, filepath.Dir(abs))
	res.State = StateApplied
	return nil
}

// write stores content atomically and records the size on res.
func (e *Engine) write(abs, content string, mode os.FileMode, res *FileResult) error {
	if err := writeFileAtomic(abs, []byte(content), mode); err != nil {
		return ioError("write", res.Path, err)
	}
	res.BytesWritten = len(content)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// readCurrent returns the content and permission bits of abs. A missing
// file is reported through exists, not as an error.
func readCurrent(abs, rel string) (content string, mode os.FileMode, exists bool, err error) {
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, false, nil
		}
		return "", 0, false, ioError("stat", rel, err)
	}
	if info.IsDir() {
		return "", 0, false, ioError("stat", rel, ErrIsDirectory)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", 0, false, ioError("read", rel, err)
	}
	return string(data), info.Mode().Perm(), true, nil
}

// deletedAncestor reports whether a strict ancestor of rel was deleted as
// a file earlier in the run.
func deletedAncestor(rel string, deleted map[string]int) (string, int, bool) {
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if index, ok := deleted[dir]; ok {
			return dir, index, true
		}
	}
	return "", 0, false
}

// pruneEmptyDirs removes dir and its parents while they are empty, stopping
// at root.
func pruneEmptyDirs(root, dir string) {
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
