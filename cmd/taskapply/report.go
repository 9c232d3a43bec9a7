// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/taskapply/pkg/ux"
	"github.com/AleutianAI/taskapply/services/apply"
	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/engine"
	"github.com/AleutianAI/taskapply/services/apply/patch"
	"github.com/AleutianAI/taskapply/services/apply/task"
	"github.com/AleutianAI/taskapply/services/apply/worktree"
)

// applyReport is the JSON document printed by "apply".
type applyReport struct {
	TaskID   string          `json:"task_id,omitempty"`
	ExitCode int             `json:"exit_code"`
	Error    string          `json:"error,omitempty"`
	Outcome  *engine.Outcome `json:"outcome,omitempty"`

	// Markers counts the conflict blocks left in each conflicted file.
	Markers map[string]int `json:"markers,omitempty"`
}

// planReport is the JSON document printed by "check".
type planReport struct {
	TaskID  string      `json:"task_id,omitempty"`
	Root    string      `json:"root"`
	Entries []planEntry `json:"entries"`
}

type planEntry struct {
	Index   int        `json:"index"`
	Path    string     `json:"path"`
	Op      patch.Kind `json:"op"`
	Hunks   int        `json:"hunks,omitempty"`
	Added   int        `json:"added"`
	Removed int        `json:"removed"`

	// UnresolvedMarkers is set when the target already holds conflict
	// blocks from an earlier run.
	UnresolvedMarkers bool `json:"unresolved_markers,omitempty"`
}

// reporter prints results either styled, for a terminal, or as JSON.
type reporter struct {
	stdout io.Writer
	styled bool
	out    *ux.Printer
	errOut *ux.Printer
}

func newReporter(g *globalOptions) *reporter {
	styled := g.styled()
	return &reporter{
		stdout: g.stdout,
		styled: styled,
		out:    ux.NewPrinter(g.stdout, styled),
		errOut: ux.NewPrinter(g.stderr, styled),
	}
}

// fatal reports an error that stopped the command before any apply and
// returns the matching exitError.
func (r *reporter) fatal(err error) error {
	r.errOut.Error(err.Error())
	if !r.styled {
		r.writeJSON(applyReport{ExitCode: exitFailure, Error: err.Error()})
	}
	return &exitError{code: exitFailure, err: err}
}

func (r *reporter) outcome(t *task.Response, outcome *engine.Outcome, err error, code int) {
	if !r.styled {
		report := applyReport{TaskID: t.ID(), ExitCode: code, Outcome: outcome, Markers: markerCounts(outcome)}
		if err != nil {
			report.Error = err.Error()
			if code != exitConflict {
				r.errOut.Error(err.Error())
			}
		}
		r.writeJSON(report)
		return
	}

	title := "Applying task"
	if t.Task != nil && t.Task.Title != "" {
		title += ": " + t.Task.Title
	}
	r.out.Title(title)

	if outcome == nil {
		r.errOut.Error(err.Error())
		return
	}
	r.out.Info(fmt.Sprintf("%s %s", ux.IconArrow, outcome.Root))
	for _, f := range outcome.Files {
		icon, detail := fileStatus(f)
		r.out.FileStatus(f.Path, icon, detail)
	}
	r.out.Summary(len(outcome.Applied)-len(outcome.Unchanged), len(outcome.Unchanged), len(outcome.Conflicted))

	switch code {
	case exitOK:
		r.out.Success(fmt.Sprintf("Applied %d file(s) in %s", len(outcome.Applied), outcome.Duration.Round(time.Millisecond)))
	case exitConflict:
		counts := markerCounts(outcome)
		lines := make([]string, 0, len(outcome.Conflicted))
		for _, p := range outcome.Conflicted {
			lines = append(lines, fmt.Sprintf("%s (%d block%s)", p, counts[p], pluralS(counts[p])))
		}
		r.out.WarningBox("Resolve the conflict markers in:", lines)
	default:
		r.errOut.Error(err.Error())
	}
}

func (r *reporter) plan(t *task.Response, plan *apply.Plan) {
	if !r.styled {
		report := planReport{TaskID: plan.TaskID, Root: plan.Tree.Root, Entries: make([]planEntry, 0, len(plan.Entries))}
		for _, e := range plan.Entries {
			pe := planEntry{
				Index:             e.Index,
				Path:              e.Path,
				Op:                e.Kind(),
				Added:             e.Added,
				Removed:           e.Removed,
				UnresolvedMarkers: hasMarkers(plan.Tree, e.Path),
			}
			if m, ok := e.Op.(patch.Modify); ok {
				pe.Hunks = len(m.Hunks)
			}
			report.Entries = append(report.Entries, pe)
		}
		r.writeJSON(report)
		return
	}

	lines := make([]string, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		line := e.String()
		if hasMarkers(plan.Tree, e.Path) {
			line += " (unresolved conflict markers)"
		}
		lines = append(lines, line)
	}
	title := fmt.Sprintf("%d entr%s for %s", len(plan.Entries), plural(len(plan.Entries)), plan.Tree.Root)
	if id := t.ID(); id != "" {
		title = id + ": " + title
	}
	r.out.Box(title, lines)
}

func (r *reporter) writeJSON(v any) {
	enc := json.NewEncoder(r.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fileStatus(f engine.FileResult) (ux.Icon, string) {
	switch f.State {
	case engine.StateApplied:
		return ux.IconSuccess, string(f.Op)
	case engine.StateUnchanged:
		return ux.IconUnchanged, "already up to date"
	case engine.StateConflicted:
		if f.Reason != "" {
			return ux.IconWarning, f.Reason
		}
		return ux.IconWarning, fmt.Sprintf("%d conflict(s)", f.HunksConflicted)
	default:
		return ux.IconError, f.Reason
	}
}

// markerCounts reads back each conflicted file and counts its blocks.
func markerCounts(outcome *engine.Outcome) map[string]int {
	if outcome == nil || len(outcome.Conflicted) == 0 {
		return nil
	}
	counts := make(map[string]int, len(outcome.Conflicted))
	for _, p := range outcome.Conflicted {
		data, err := os.ReadFile(filepath.Join(outcome.Root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}
		counts[p] = conflict.Count(string(data))
	}
	return counts
}

func hasMarkers(tree *worktree.Tree, rel string) bool {
	abs, err := tree.Abs(rel)
	if err != nil {
		return false
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return false
	}
	return conflict.HasMarkers(string(data))
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
