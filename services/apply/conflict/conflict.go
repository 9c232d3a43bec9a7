// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conflict renders git-style conflict markers and the error that
// summarizes conflicted paths.
//
// # Description
//
// A conflict block looks exactly like the ones git writes during a merge:
//
//	<<<<<<< HEAD
//	local lines
//	=======
//	incoming lines
//	>>>>>>> task
//
// Every marker sits on its own line. When the last local or incoming line
// lacks a newline, one is added before the following marker.
package conflict

import (
	"errors"
	"fmt"
	"strings"
)

// Marker prefixes.
const (
	OursMarker    = "<<<<<<<"
	DividerMarker = "======="
	TheirsMarker  = ">>>>>>>"
)

// Default labels.
const (
	DefaultOursLabel   = "HEAD"
	DefaultTheirsLabel = "task"
)

// Labels name the two sides of a conflict block.
type Labels struct {
	Ours   string
	Theirs string
}

// DefaultLabels returns HEAD and task.
func DefaultLabels() Labels {
	return Labels{Ours: DefaultOursLabel, Theirs: DefaultTheirsLabel}
}

func (l Labels) withDefaults() Labels {
	if l.Ours == "" {
		l.Ours = DefaultOursLabel
	}
	if l.Theirs == "" {
		l.Theirs = DefaultTheirsLabel
	}
	return l
}

// Block returns the lines of a single conflict block. ours and theirs keep
// their line terminators; the result does too.
func Block(ours, theirs []string, labels Labels) []string {
	labels = labels.withDefaults()

	out := make([]string, 0, len(ours)+len(theirs)+3)
	out = append(out, OursMarker+" "+labels.Ours+"\n")
	out = appendTerminated(out, ours)
	out = append(out, DividerMarker+"\n")
	out = appendTerminated(out, theirs)
	out = append(out, TheirsMarker+" "+labels.Theirs+"\n")
	return out
}

// Splice renders a whole-file conflict. Lines shared at the start and end
// of both sides stay outside the block, so only the diverging region is
// marked up.
func Splice(ours, theirs []string, labels Labels) []string {
	prefix := 0
	for prefix < len(ours) && prefix < len(theirs) && ours[prefix] == theirs[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(ours)-prefix && suffix < len(theirs)-prefix &&
		ours[len(ours)-1-suffix] == theirs[len(theirs)-1-suffix] {
		suffix++
	}

	out := make([]string, 0, len(ours)+len(theirs)+3)
	out = append(out, ours[:prefix]...)
	out = append(out, Block(ours[prefix:len(ours)-suffix], theirs[prefix:len(theirs)-suffix], labels)...)
	out = append(out, ours[len(ours)-suffix:]...)
	return out
}

// HasMarkers reports whether content holds at least one complete conflict
// block: an opening, a divider and a closing marker, in that order, each at
// the start of a line.
func HasMarkers(content string) bool {
	state := 0
	for _, line := range strings.Split(content, "\n") {
		switch {
		case state == 0 && strings.HasPrefix(line, OursMarker):
			state = 1
		case state == 1 && line == DividerMarker:
			state = 2
		case state == 2 && strings.HasPrefix(line, TheirsMarker):
			return true
		}
	}
	return false
}

// Count returns the number of complete conflict blocks in content.
func Count(content string) int {
	n, state := 0, 0
	for _, line := range strings.Split(content, "\n") {
		switch {
		case state == 0 && strings.HasPrefix(line, OursMarker):
			state = 1
		case state == 1 && line == DividerMarker:
			state = 2
		case state == 2 && strings.HasPrefix(line, TheirsMarker):
			n++
			state = 0
		}
	}
	return n
}

func appendTerminated(out, lines []string) []string {
	out = append(out, lines...)
	if n := len(out); n > 0 && !strings.HasSuffix(out[n-1], "\n") {
		out[n-1] += "\n"
	}
	return out
}

// =============================================================================
// Error
// =============================================================================

// ErrMergeConflict matches *MergeConflictError.
var ErrMergeConflict = errors.New("merge conflict")

// MergeConflictError lists the paths left with conflict markers.
type MergeConflictError struct {
	// Paths are repository-relative, in the order they were processed.
	Paths []string
}

// Error implements error.
func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("%s in %d file(s): %s; resolve the conflict markers manually",
		ErrMergeConflict, len(e.Paths), strings.Join(e.Paths, ", "))
}

// Is reports whether target is ErrMergeConflict.
func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}
