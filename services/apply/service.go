// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apply applies the diff of a remote coding task to a local working
// tree.
//
// # Description
//
// Service runs the pipeline: locate the tree, extract the diff, parse it,
// apply every entry, and report. Locating and parsing are fatal and happen
// before any file is touched. Files the engine has written stay written,
// whatever happens to later entries.
//
// # Example
//
//	svc := apply.New(config.Default(), logger)
//	outcome, err := svc.ApplyTask(ctx, resp, "")
//	if errors.Is(err, conflict.ErrMergeConflict) {
//	    // outcome.Conflicted lists files with markers
//	}
package apply

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/taskapply/services/apply/config"
	"github.com/AleutianAI/taskapply/services/apply/engine"
	"github.com/AleutianAI/taskapply/services/apply/patch"
	"github.com/AleutianAI/taskapply/services/apply/task"
	"github.com/AleutianAI/taskapply/services/apply/worktree"
)

// Service applies task diffs.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	// beforeEntry is passed to the engine; tests use it to simulate
	// interruption.
	beforeEntry func(int, patch.Entry) error
}

// New creates a Service. A nil cfg uses config.Default() and a nil logger
// uses slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}
}

// Plan is the result of validating a task without applying it.
type Plan struct {
	Tree    *worktree.Tree
	TaskID  string
	Entries []patch.Entry
}

// PlanTask locates the tree and parses the task diff without touching any
// file.
//
// # Inputs
//
//   - t: the task response.
//   - dir: start directory for the tree search; "" uses the process working
//     directory.
//
// # Outputs
//
//   - *Plan: the tree and the entries an apply would process.
//   - error: wraps worktree.ErrNotAVersionedTree or patch.ErrMalformedDiff.
func (s *Service) PlanTask(t *task.Response, dir string) (*Plan, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: %w: no task response", patch.ErrMalformedDiff, task.ErrNoDiff)
	}

	tree, err := worktree.Locate(dir)
	if err != nil {
		return nil, err
	}

	payload, err := t.Diff()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", patch.ErrMalformedDiff, err)
	}

	entries, err := patch.Parse(payload)
	if err != nil {
		return nil, err
	}
	return &Plan{Tree: tree, TaskID: t.ID(), Entries: entries}, nil
}

// ApplyTask applies the diff carried by t to the tree containing dir.
//
// # Outputs
//
//   - *engine.Outcome: nil when locating or parsing failed, otherwise the
//     per-file report, including after conflicts and I/O failures.
//   - error: nil on a clean apply; see engine.Engine.Apply for the rest.
func (s *Service) ApplyTask(ctx context.Context, t *task.Response, dir string) (*engine.Outcome, error) {
	plan, err := s.PlanTask(t, dir)
	if err != nil {
		s.logger.Error("Task rejected",
			slog.String("task_id", t.ID()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Applying task",
		slog.String("task_id", plan.TaskID),
		slog.String("root", plan.Tree.Root),
		slog.Int("entries", len(plan.Entries)),
	)
	return s.engine(t.ShortID()).Apply(ctx, plan.Tree, plan.Entries)
}

// ApplyDiff applies a raw unified diff payload to the tree containing dir.
func (s *Service) ApplyDiff(ctx context.Context, payload, dir string) (*engine.Outcome, error) {
	tree, err := worktree.Locate(dir)
	if err != nil {
		return nil, err
	}
	entries, err := patch.Parse(payload)
	if err != nil {
		return nil, err
	}
	return s.engine("").Apply(ctx, tree, entries)
}

func (s *Service) engine(shortID string) *engine.Engine {
	opts := s.cfg.EngineOptions(shortID)
	opts.BeforeEntry = s.beforeEntry
	return engine.New(opts, s.logger)
}
