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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/patch"
)

func lines(s ...string) []string {
	out := make([]string, len(s))
	for i, l := range s {
		out[i] = l + "\n"
	}
	return out
}

func TestSearch(t *testing.T) {
	src := lines("a", "b", "c", "a", "b", "x", "y")

	tests := []struct {
		name      string
		pat       []string
		from      int
		anchor    int
		maxOffset int
		want      int
		found     bool
	}{
		{"exact_at_anchor", lines("c"), 0, 2, 0, 2, true},
		{"below_anchor", lines("x", "y"), 0, 2, 0, 5, true},
		{"above_anchor", lines("c", "a"), 0, 5, 0, 2, true},
		{"nearest_wins", lines("a", "b"), 0, 2, 0, 3, true},
		{"respects_from", lines("a", "b"), 1, 0, 0, 3, true},
		{"max_offset_too_small", lines("x", "y"), 0, 2, 2, 0, false},
		{"max_offset_enough", lines("x", "y"), 0, 2, 3, 5, true},
		{"missing", lines("zzz"), 0, 0, 0, 0, false},
		{"longer_than_source", lines("a", "b", "c", "a", "b", "x", "y", "z"), 0, 0, 0, 0, false},
		{"empty_at_anchor", nil, 0, 4, 0, 4, true},
		{"empty_at_end", nil, 0, 7, 0, 7, true},
		{"empty_out_of_range", nil, 0, 8, 0, 8, false},
		{"empty_before_from", nil, 3, 1, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := search(src, tt.pat, tt.from, tt.anchor, tt.maxOffset)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSearch_EqualDistanceIsAmbiguous(t *testing.T) {
	src := lines("x", "y", "m", "m", "x", "y")

	_, found := search(src, lines("x", "y"), 0, 2, 0)
	assert.False(t, found)

	got, found := search(src, lines("x", "y"), 0, 1, 0)
	assert.True(t, found)
	assert.Equal(t, 0, got)
}

func TestReconcile(t *testing.T) {
	labels := conflict.DefaultLabels()
	hunk := patch.Hunk{
		OldStart: 2, NewStart: 2,
		Before: lines("b", "c", "d"),
		After:  lines("b", "C", "d"),
	}

	t.Run("clean", func(t *testing.T) {
		r := reconcile(lines("a", "b", "c", "d", "e"), []patch.Hunk{hunk}, 0, labels)
		assert.Equal(t, lines("a", "b", "C", "d", "e"), r.lines)
		assert.Equal(t, 1, r.applied)
		assert.Zero(t, r.conflicted)
	})

	t.Run("already_applied", func(t *testing.T) {
		r := reconcile(lines("a", "b", "C", "d", "e"), []patch.Hunk{hunk}, 0, labels)
		assert.Equal(t, lines("a", "b", "C", "d", "e"), r.lines)
		assert.Equal(t, 1, r.skipped)
		assert.Zero(t, r.applied)
	})

	t.Run("relocated", func(t *testing.T) {
		r := reconcile(lines("new", "a", "b", "c", "d", "e"), []patch.Hunk{hunk}, 0, labels)
		assert.Equal(t, lines("new", "a", "b", "C", "d", "e"), r.lines)
		assert.Equal(t, 1, r.applied)
	})

	t.Run("diverged", func(t *testing.T) {
		r := reconcile(lines("a", "b", "local", "d", "e"), []patch.Hunk{hunk}, 0, labels)
		want := "a\n" +
			"<<<<<<< HEAD\nb\nlocal\nd\n=======\nb\nC\nd\n>>>>>>> task\n" +
			"e\n"
		assert.Equal(t, want, strings.Join(r.lines, ""))
		assert.Equal(t, 1, r.conflicted)
	})

	t.Run("empty_source", func(t *testing.T) {
		r := reconcile(nil, []patch.Hunk{hunk}, 0, labels)
		want := "<<<<<<< HEAD\n=======\nb\nC\nd\n>>>>>>> task\n"
		assert.Equal(t, want, strings.Join(r.lines, ""))
	})

	t.Run("appending_hunk_is_idempotent", func(t *testing.T) {
		appendHunk := patch.Hunk{
			OldStart: 1, NewStart: 1,
			Before: lines("a", "b"),
			After:  lines("a", "b", "c"),
		}
		first := reconcile(lines("a", "b"), []patch.Hunk{appendHunk}, 0, labels)
		assert.Equal(t, lines("a", "b", "c"), first.lines)
		assert.Equal(t, 1, first.applied)

		second := reconcile(first.lines, []patch.Hunk{appendHunk}, 0, labels)
		assert.Equal(t, lines("a", "b", "c"), second.lines)
		assert.Equal(t, 1, second.skipped)
	})

	t.Run("removal_hunk_is_idempotent", func(t *testing.T) {
		removeHunk := patch.Hunk{
			OldStart: 1, NewStart: 1,
			Before: lines("a", "b", "c"),
			After:  lines("a", "c"),
		}
		first := reconcile(lines("a", "b", "c"), []patch.Hunk{removeHunk}, 0, labels)
		assert.Equal(t, lines("a", "c"), first.lines)

		second := reconcile(first.lines, []patch.Hunk{removeHunk}, 0, labels)
		assert.Equal(t, lines("a", "c"), second.lines)
		assert.Equal(t, 1, second.skipped)
	})

	t.Run("later_hunk_searches_after_earlier", func(t *testing.T) {
		hunks := []patch.Hunk{
			{OldStart: 1, NewStart: 1, Before: lines("x", "1"), After: lines("x", "one")},
			{OldStart: 1, NewStart: 1, Before: lines("x", "1"), After: lines("x", "uno")},
		}
		r := reconcile(lines("x", "1", "x", "1"), hunks, 0, labels)
		assert.Equal(t, lines("x", "one", "x", "uno"), r.lines)
		assert.Equal(t, 2, r.applied)
	})
}

func TestReconcile_ExpectedPosition(t *testing.T) {
	labels := conflict.DefaultLabels()

	tests := []struct {
		name       string
		src        []string
		hunks      []patch.Hunk
		want       string
		applied    int
		skipped    int
		conflicted int
	}{
		{
			name: "post_image_elsewhere_does_not_hide_divergence",
			src:  lines("x = 2", "y", "z", "q", "w", "v", "x = LOCAL", "y"),
			hunks: []patch.Hunk{{
				OldStart: 7, NewStart: 7,
				Before: lines("x = 1", "y"),
				After:  lines("x = 2", "y"),
			}},
			want: "x = 2\ny\nz\nq\nw\nv\n" +
				"<<<<<<< HEAD\nx = LOCAL\ny\n=======\nx = 2\ny\n>>>>>>> task\n",
			conflicted: 1,
		},
		{
			name:    "zero_context_deletion",
			src:     lines("a", "b", "c"),
			hunks:   []patch.Hunk{{OldStart: 2, NewStart: 1, Before: lines("b")}},
			want:    "a\nc\n",
			applied: 1,
		},
		{
			name:       "zero_context_deletion_of_edited_line",
			src:        lines("a", "LOCAL EDIT", "c"),
			hunks:      []patch.Hunk{{OldStart: 2, NewStart: 1, Before: lines("b")}},
			want:       "a\n<<<<<<< HEAD\nLOCAL EDIT\n=======\n>>>>>>> task\nc\n",
			conflicted: 1,
		},
		{
			name:    "zero_context_insertion_next_to_equal_line",
			src:     lines("a", "}", "c"),
			hunks:   []patch.Hunk{{OldStart: 2, NewStart: 3, After: lines("}")}},
			want:    "a\n}\n}\nc\n",
			applied: 1,
		},
		{
			name:    "zero_context_insertion_already_applied",
			src:     lines("a", "}", "}", "c"),
			hunks:   []patch.Hunk{{OldStart: 2, NewStart: 3, After: lines("}")}},
			want:    "a\n}\n}\nc\n",
			skipped: 1,
		},
		{
			name:    "zero_context_change_already_applied",
			src:     lines("a", "B", "c"),
			hunks:   []patch.Hunk{{OldStart: 2, NewStart: 2, Before: lines("b"), After: lines("B")}},
			want:    "a\nB\nc\n",
			skipped: 1,
		},
		{
			name: "pre_image_at_position_beats_post_image_nearby",
			src:  lines("x", "y", "x", "Y"),
			hunks: []patch.Hunk{{
				OldStart: 1, NewStart: 1,
				Before: lines("x", "y"),
				After:  lines("x", "Y"),
			}},
			want:    "x\nY\nx\nY\n",
			applied: 1,
		},
		{
			name: "later_hunk_follows_earlier_shift",
			src:  lines("new", "a", "b", "c", "d", "e"),
			hunks: []patch.Hunk{
				{OldStart: 1, NewStart: 1, Before: lines("a", "b"), After: lines("a", "B")},
				{OldStart: 4, NewStart: 5, After: lines("X")},
			},
			want:    "new\na\nB\nc\nd\nX\ne\n",
			applied: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := reconcile(tt.src, tt.hunks, 0, labels)
			assert.Equal(t, tt.want, strings.Join(r.lines, ""))
			assert.Equal(t, tt.applied, r.applied)
			assert.Equal(t, tt.skipped, r.skipped)
			assert.Equal(t, tt.conflicted, r.conflicted)
		})
	}
}
