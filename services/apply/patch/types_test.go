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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"single_terminated", "a\n", []string{"a\n"}},
		{"single_unterminated", "a", []string{"a"}},
		{"trailing_missing", "a\nb", []string{"a\n", "b"}},
		{"blank_lines", "\n\n", []string{"\n", "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines(tt.content)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.content, JoinLines(got))
		})
	}
}

func TestHunk_Indexes(t *testing.T) {
	t.Run("with_lines", func(t *testing.T) {
		h := Hunk{OldStart: 5, NewStart: 7, Before: []string{"x\n"}, After: []string{"y\n"}}
		assert.Equal(t, 4, h.OldIndex())
		assert.Equal(t, 6, h.NewIndex())
	})

	t.Run("pure_insertion", func(t *testing.T) {
		h := Hunk{OldStart: 3, NewStart: 4, After: []string{"new\n"}}
		assert.Equal(t, 3, h.OldIndex())
		assert.Equal(t, 3, h.NewIndex())
	})

	t.Run("pure_removal", func(t *testing.T) {
		h := Hunk{OldStart: 2, NewStart: 1, Before: []string{"gone\n"}}
		assert.Equal(t, 1, h.OldIndex())
		assert.Equal(t, 1, h.NewIndex())
	})
}

func TestEntry_String(t *testing.T) {
	e := Entry{Path: "a/b.txt", Op: Delete{Expected: "x\n"}, Removed: 1}
	assert.Equal(t, KindDelete, e.Kind())
	assert.Equal(t, "+0 -1", e.Stats())
	assert.Equal(t, "delete a/b.txt (+0 -1)", e.String())
}
