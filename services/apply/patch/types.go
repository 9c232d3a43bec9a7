// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch turns a task's unified diff payload into an ordered list of
// file-level change entries.
//
// # Description
//
// Each Entry carries one Operation, which is exactly one of Create, Modify
// or Delete. The set is closed: Operation has an unexported marker method,
// so a type switch over the three variants is exhaustive.
//
// Lines inside a Hunk keep their terminator. A line without a trailing
// "\n" can only be the final line of a file, which is how "\ No newline
// at end of file" survives a parse/apply round trip byte for byte.
//
// # Thread Safety
//
// Entries are immutable after Parse returns and safe to read concurrently.
package patch

import (
	"fmt"
	"strings"
)

// =============================================================================
// Operation Kind
// =============================================================================

// Kind names an operation variant.
type Kind string

const (
	// KindCreate creates a new file with full content.
	KindCreate Kind = "create"

	// KindModify rewrites regions of an existing file.
	KindModify Kind = "modify"

	// KindDelete removes an existing file.
	KindDelete Kind = "delete"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// =============================================================================
// Operations
// =============================================================================

// Operation is the closed set of file-level changes.
type Operation interface {
	// Kind reports which variant this is.
	Kind() Kind

	operation()
}

// Create writes Content to a path that is expected not to exist yet.
type Create struct {
	// Content is the full target content.
	Content string
}

// Kind implements Operation.
func (Create) Kind() Kind { return KindCreate }
func (Create) operation() {}

// Modify applies hunks, in order, to an existing file.
type Modify struct {
	// Hunks are ordered by OldStart and never overlap.
	Hunks []Hunk
}

// Kind implements Operation.
func (Modify) Kind() Kind { return KindModify }
func (Modify) operation() {}

// Delete removes a file whose content is expected to equal Expected.
type Delete struct {
	// Expected is the content the diff removes.
	Expected string
}

// Kind implements Operation.
func (Delete) Kind() Kind { return KindDelete }
func (Delete) operation() {}

// =============================================================================
// Hunk
// =============================================================================

// Hunk is one contiguous change region of a Modify.
type Hunk struct {
	// OldStart is the 1-based line where Before begins in the original file.
	OldStart int

	// NewStart is the 1-based line where After begins in the updated file.
	NewStart int

	// Before is the pre-image: context and removed lines.
	Before []string

	// After is the post-image: context and added lines.
	After []string

	// Section is the optional heading after the second "@@".
	Section string
}

// OldIndex is the 0-based line index where Before starts in the original
// file. A hunk with an empty pre-image inserts after line OldStart.
func (h Hunk) OldIndex() int {
	if len(h.Before) == 0 {
		return h.OldStart
	}
	return h.OldStart - 1
}

// NewIndex is the 0-based line index where After starts in the updated file.
func (h Hunk) NewIndex() int {
	if len(h.After) == 0 {
		return h.NewStart
	}
	return h.NewStart - 1
}

// Header returns the unified diff header for this hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, len(h.Before), h.NewStart, len(h.After))
}

// =============================================================================
// Entry
// =============================================================================

// Entry is one file-level change in payload order.
type Entry struct {
	// Index is the zero-based position of the entry in the payload.
	Index int

	// Path is repository-relative, slash-separated and cleaned.
	Path string

	// Op is the change to perform.
	Op Operation

	// Added and Removed are the line counts from the diff body.
	Added   int
	Removed int
}

// Kind is shorthand for e.Op.Kind().
func (e Entry) Kind() Kind {
	return e.Op.Kind()
}

// Stats returns a formatted stats string like "+12 -3".
func (e Entry) Stats() string {
	return fmt.Sprintf("+%d -%d", e.Added, e.Removed)
}

// String returns a one-line description such as "modify src/main.go (+3 -1)".
func (e Entry) String() string {
	return fmt.Sprintf("%s %s (%s)", e.Kind(), e.Path, e.Stats())
}

// =============================================================================
// Line helpers
// =============================================================================

// SplitLines splits content into lines that keep their "\n" terminator.
// The final element has no terminator when content does not end in "\n".
// Empty content yields no lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "")
}
