// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// devNull is the name unified diffs use for the missing side of a
// creation or deletion.
const devNull = "/dev/null"

// Parse parses a unified diff payload into entries, in payload order.
//
// # Description
//
// The payload may span many files and may carry git extended headers.
// Parse is pure: it never touches the file system.
//
// # Inputs
//
//   - payload: unified diff text, as produced by `git diff`.
//
// # Outputs
//
//   - []Entry: one entry per file diff, in payload order. Several entries
//     may target the same path.
//   - error: a *MalformedError (matching ErrMalformedDiff) when the payload
//     cannot be turned into self-consistent entries.
func Parse(payload string) ([]Entry, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, malformed(-1, "", "empty payload")
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(payload))
	if err != nil {
		e := malformed(-1, "", "parse unified diff: %v", err)
		e.Err = err
		return nil, e
	}
	if len(fileDiffs) == 0 {
		return nil, malformed(-1, "", "payload contains no file changes")
	}

	entries := make([]Entry, 0, len(fileDiffs))
	for i, fd := range fileDiffs {
		entry, err := buildEntry(i, fd)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// extendedHeaders summarizes the git extended header lines of a file diff.
type extendedHeaders struct {
	newFile     bool
	deletedFile bool
	rename      bool
	copied      bool
	binary      bool
}

func readExtended(lines []string) extendedHeaders {
	var h extendedHeaders
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "new file mode "):
			h.newFile = true
		case strings.HasPrefix(line, "deleted file mode "):
			h.deletedFile = true
		case strings.HasPrefix(line, "rename from "), strings.HasPrefix(line, "rename to "):
			h.rename = true
		case strings.HasPrefix(line, "copy from "), strings.HasPrefix(line, "copy to "):
			h.copied = true
		case strings.HasPrefix(line, "Binary files "), strings.HasPrefix(line, "GIT binary patch"):
			h.binary = true
		}
	}
	return h
}

// buildEntry converts one go-diff FileDiff into an Entry.
func buildEntry(index int, fd *diff.FileDiff) (Entry, error) {
	ext := readExtended(fd.Extended)
	origName, newName := stripGitPrefixes(fd.OrigName, fd.NewName)

	display := newName
	if display == devNull || display == "" {
		display = origName
	}

	if ext.binary {
		return Entry{}, malformed(index, display, "binary patches are not supported")
	}
	if origName == "" && newName == "" {
		return Entry{}, malformed(index, "", "file diff has no ---/+++ headers; mode-only changes are not supported")
	}
	if ext.rename || ext.copied {
		return Entry{}, malformed(index, display, "renames and copies are not supported")
	}

	var (
		kind     Kind
		rawPath  string
		creating = origName == devNull || (ext.newFile && len(fd.Hunks) == 0)
		deleting = newName == devNull || (ext.deletedFile && len(fd.Hunks) == 0)
	)
	switch {
	case creating && deleting:
		return Entry{}, malformed(index, display, "file diff neither has an original nor a new side")
	case creating:
		kind, rawPath = KindCreate, newName
	case deleting:
		kind, rawPath = KindDelete, origName
	default:
		if origName != newName {
			return Entry{}, malformed(index, display, "original name %q and new name %q differ; renames are not supported", origName, newName)
		}
		kind, rawPath = KindModify, newName
	}

	cleanPath, reason := normalizePath(rawPath)
	if reason != "" {
		return Entry{}, malformed(index, rawPath, "%s", reason)
	}

	hunks := make([]Hunk, 0, len(fd.Hunks))
	entry := Entry{Index: index, Path: cleanPath}
	for i, h := range fd.Hunks {
		hunk, added, removed, reason := decodeHunk(h)
		if reason != "" {
			return Entry{}, malformed(index, cleanPath, "hunk %d: %s", i+1, reason)
		}
		if n := len(hunks); n > 0 {
			prev := hunks[n-1]
			if hunk.OldIndex() < prev.OldIndex()+len(prev.Before) {
				return Entry{}, malformed(index, cleanPath, "hunk %d overlaps or precedes hunk %d", i+1, i)
			}
		}
		hunks = append(hunks, hunk)
		entry.Added += added
		entry.Removed += removed
	}

	switch kind {
	case KindCreate:
		var content []string
		for i, h := range hunks {
			if len(h.Before) > 0 {
				return Entry{}, malformed(index, cleanPath, "hunk %d of a new file has pre-image lines", i+1)
			}
			content = append(content, h.After...)
		}
		entry.Op = Create{Content: JoinLines(content)}
	case KindDelete:
		var expected []string
		for i, h := range hunks {
			if len(h.After) > 0 {
				return Entry{}, malformed(index, cleanPath, "hunk %d of a deleted file has post-image lines", i+1)
			}
			expected = append(expected, h.Before...)
		}
		entry.Op = Delete{Expected: JoinLines(expected)}
	default:
		entry.Op = Modify{Hunks: hunks}
	}

	return entry, nil
}

// stripGitPrefixes removes git's "a/" and "b/" prefixes when both sides
// carry them (or are /dev/null).
func stripGitPrefixes(origName, newName string) (string, string) {
	origOK := origName == devNull || strings.HasPrefix(origName, "a/")
	newOK := newName == devNull || strings.HasPrefix(newName, "b/")
	if !origOK || !newOK || (origName == devNull && newName == devNull) {
		return origName, newName
	}
	if origName != devNull {
		origName = strings.TrimPrefix(origName, "a/")
	}
	if newName != devNull {
		newName = strings.TrimPrefix(newName, "b/")
	}
	return origName, newName
}

// normalizePath cleans a diff path and returns a non-empty reason when
// the path may not be written.
func normalizePath(p string) (string, string) {
	if p == "" {
		return "", "empty path"
	}
	if strings.ContainsRune(p, 0) {
		return "", "path contains a NUL byte"
	}
	if path.IsAbs(p) || isDriveLetterPath(p) {
		return "", "absolute paths are not allowed"
	}

	clean := path.Clean(p)
	switch {
	case clean == ".":
		return "", "path resolves to the repository root"
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", "path escapes the working tree"
	}

	first, _, _ := strings.Cut(clean, "/")
	if first == ".git" {
		return "", "path points inside .git"
	}
	return clean, ""
}

func isDriveLetterPath(p string) bool {
	if len(p) < 3 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z' && (p[2] == '/' || p[2] == '\\')
}

// decodeHunk splits a go-diff hunk body into pre- and post-image lines.
//
// go-diff encodes "\ No newline at end of file" in two ways: for the new
// side it drops the newline that followed the affected body line; for the
// original side it records the body offset in OrigNoNewlineAt. Other
// backslash lines are treated as the same marker for the preceding line.
func decodeHunk(h *diff.Hunk) (Hunk, int, int, string) {
	out := Hunk{
		OldStart: int(h.OrigStartLine),
		NewStart: int(h.NewStartLine),
		Section:  h.Section,
	}
	wantBefore, wantAfter := int(h.OrigLines), int(h.NewLines)

	var (
		added, removed int
		last           byte
		body           = h.Body
		pos            int
	)
	for pos < len(body) {
		var (
			line  []byte
			hasNL bool
		)
		if end := bytes.IndexByte(body[pos:], '\n'); end >= 0 {
			line, hasNL = body[pos:pos+end], true
			pos += end + 1
		} else {
			line = body[pos:]
			pos = len(body)
		}

		origNL := hasNL
		if h.OrigNoNewlineAt > 0 && int(h.OrigNoNewlineAt) == pos {
			origNL = false
		}

		full := len(out.Before) == wantBefore && len(out.After) == wantAfter
		if len(line) == 0 {
			if full {
				continue
			}
			// Some generators strip the single space of a blank context line.
			line = []byte{' '}
		}

		prefix, text := line[0], string(line[1:])
		if prefix == '\\' {
			trimNewline(&out, last)
			continue
		}
		if full {
			return Hunk{}, 0, 0, "body has more lines than the header declares"
		}

		switch prefix {
		case ' ':
			out.Before = append(out.Before, withNewline(text, origNL))
			out.After = append(out.After, withNewline(text, hasNL))
		case '-':
			out.Before = append(out.Before, withNewline(text, origNL))
			removed++
		case '+':
			out.After = append(out.After, withNewline(text, hasNL))
			added++
		default:
			return Hunk{}, 0, 0, fmt.Sprintf("unexpected line prefix %q", prefix)
		}
		last = prefix
	}

	if len(out.Before) != wantBefore {
		return Hunk{}, 0, 0, lineCountMismatch("original", wantBefore, len(out.Before))
	}
	if len(out.After) != wantAfter {
		return Hunk{}, 0, 0, lineCountMismatch("new", wantAfter, len(out.After))
	}
	if wantBefore > 0 && out.OldStart < 1 {
		return Hunk{}, 0, 0, "original start line must be at least 1"
	}
	if wantAfter > 0 && out.NewStart < 1 {
		return Hunk{}, 0, 0, "new start line must be at least 1"
	}
	for i, l := range out.Before[:max(len(out.Before)-1, 0)] {
		if !strings.HasSuffix(l, "\n") {
			return Hunk{}, 0, 0, fmt.Sprintf("original line %d lacks a newline but is not the last line", out.OldStart+i)
		}
	}
	for i, l := range out.After[:max(len(out.After)-1, 0)] {
		if !strings.HasSuffix(l, "\n") {
			return Hunk{}, 0, 0, fmt.Sprintf("new line %d lacks a newline but is not the last line", out.NewStart+i)
		}
	}
	return out, added, removed, ""
}

// trimNewline applies a "\ No newline" marker to the most recent line.
func trimNewline(h *Hunk, last byte) {
	trim := func(lines []string) {
		if n := len(lines); n > 0 {
			lines[n-1] = strings.TrimSuffix(lines[n-1], "\n")
		}
	}
	switch last {
	case ' ':
		trim(h.Before)
		trim(h.After)
	case '-':
		trim(h.Before)
	case '+':
		trim(h.After)
	}
}

func withNewline(text string, nl bool) string {
	if nl {
		return text + "\n"
	}
	return text
}

func lineCountMismatch(side string, want, got int) string {
	return fmt.Sprintf("header declares %d %s lines but body has %d", want, side, got)
}
