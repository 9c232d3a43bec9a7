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
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/taskapply/services/apply/patch"
)

// State is the final state of one entry.
type State string

const (
	// StateApplied means the file now matches the diff's target.
	StateApplied State = "applied"

	// StateUnchanged means the file already matched the target.
	StateUnchanged State = "unchanged"

	// StateConflicted means conflict markers were written, or the entry
	// was skipped because an earlier entry removed its parent path.
	StateConflicted State = "conflicted"

	// StateFailed means a file system error stopped the run at this entry.
	StateFailed State = "failed"
)

// FileResult is the result of one entry.
type FileResult struct {
	Index int        `json:"index"`
	Path  string     `json:"path"`
	Op    patch.Kind `json:"op"`
	State State      `json:"state"`

	// HunksApplied counts hunks whose pre-image was replaced.
	HunksApplied int `json:"hunks_applied,omitempty"`

	// HunksSkipped counts hunks that were already present.
	HunksSkipped int `json:"hunks_skipped,omitempty"`

	// HunksConflicted counts conflict blocks written for this entry.
	HunksConflicted int `json:"hunks_conflicted,omitempty"`

	// BytesWritten is the size of the file written, zero if none was.
	BytesWritten int `json:"bytes_written,omitempty"`

	// Reason explains a conflict or failure.
	Reason string `json:"reason,omitempty"`
}

// Outcome is the result of one apply run. It is built once, after the last
// entry ran or the run stopped.
type Outcome struct {
	ID   string `json:"id"`
	Root string `json:"root"`

	// Applied lists paths whose every entry applied cleanly, including
	// no-ops, in payload order.
	Applied []string `json:"applied"`

	// Unchanged is the subset of Applied that needed no write.
	Unchanged []string `json:"unchanged"`

	// Conflicted lists paths with at least one conflicted entry.
	Conflicted []string `json:"conflicted"`

	// Files holds one result per processed entry.
	Files []FileResult `json:"files"`

	Duration time.Duration `json:"duration"`
}

func newOutcome(root string) *Outcome {
	return &Outcome{
		ID:   uuid.NewString(),
		Root: root,
	}
}

// HasConflicts reports whether any path was left conflicted.
func (o *Outcome) HasConflicts() bool {
	return len(o.Conflicted) > 0
}

// ShortID returns the first eight characters of ID.
func (o *Outcome) ShortID() string {
	if len(o.ID) < 8 {
		return o.ID
	}
	return o.ID[:8]
}

// finish derives the path sets from Files.
func (o *Outcome) finish(elapsed time.Duration) {
	type pathState struct {
		conflicted bool
		written    bool
		failed     bool
	}

	var order []string
	states := make(map[string]*pathState)
	for _, f := range o.Files {
		ps, ok := states[f.Path]
		if !ok {
			ps = &pathState{}
			states[f.Path] = ps
			order = append(order, f.Path)
		}
		switch f.State {
		case StateConflicted:
			ps.conflicted = true
		case StateApplied:
			ps.written = true
		case StateFailed:
			ps.failed = true
		}
	}

	o.Applied = make([]string, 0, len(order))
	o.Unchanged = make([]string, 0)
	o.Conflicted = make([]string, 0)
	for _, p := range order {
		ps := states[p]
		switch {
		case ps.failed:
		case ps.conflicted:
			o.Conflicted = append(o.Conflicted, p)
		default:
			o.Applied = append(o.Applied, p)
			if !ps.written {
				o.Unchanged = append(o.Unchanged, p)
			}
		}
	}
	o.Duration = elapsed
}
