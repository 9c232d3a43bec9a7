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
	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/patch"
)

// reconciled is the result of merging a Modify into current content.
type reconciled struct {
	lines      []string
	applied    int
	skipped    int
	conflicted int
}

// reconcile applies hunks to src in order.
//
// # Description
//
// Each hunk is expected at its recorded position, shifted by the distance
// the previous hunk moved. A hunk whose post-image already sits at that
// position is skipped. A pre-image at that position is replaced. Failing
// both, a pre-image found by searching the region after the previous hunk
// is replaced, unless the hunk's post-image covers that match at its own
// nearest location, in which case the hunk is skipped. A post-image found
// elsewhere never counts as applied. Anything else becomes a conflict block
// whose local side is the text at the expected position.
//
// A zero-context deletion whose lines are gone is a conflict.
//
// The result depends only on src and hunks.
func reconcile(src []string, hunks []patch.Hunk, maxOffset int, labels conflict.Labels) reconciled {
	var (
		res    reconciled
		cursor int
		drift  int
	)
	out := make([]string, 0, len(src))

	skip := func(q int, h patch.Hunk) {
		out = append(out, src[cursor:q+len(h.After)]...)
		cursor = q + len(h.After)
		drift = q - h.NewIndex()
		res.skipped++
	}
	replace := func(p int, h patch.Hunk) {
		out = append(out, src[cursor:p]...)
		out = append(out, h.After...)
		cursor = p + len(h.Before)
		drift = p - h.OldIndex()
		res.applied++
	}

	for _, h := range hunks {
		if len(h.Before) == 0 && len(h.After) == 0 {
			res.skipped++
			continue
		}
		oldAt, newAt := h.OldIndex()+drift, h.NewIndex()+drift
		afterHere := len(h.After) > 0 && matchesAt(src, h.After, cursor, newAt)
		beforeHere := matchesAt(src, h.Before, cursor, oldAt)

		switch {
		case afterHere && (!beforeHere || covers(newAt, len(h.After), oldAt, len(h.Before))):
			skip(newAt, h)
			continue
		case beforeHere:
			replace(oldAt, h)
			continue
		}

		if len(h.Before) > 0 {
			if p, ok := search(src, h.Before, cursor, oldAt, maxOffset); ok {
				q, ok := search(src, h.After, cursor, newAt, maxOffset)
				if ok && len(h.After) > 0 && covers(q, len(h.After), p, len(h.Before)) {
					skip(q, h)
				} else {
					replace(p, h)
				}
				continue
			}
		}

		a := min(max(oldAt, cursor), len(src))
		end := min(a+len(h.Before), len(src))
		out = append(out, src[cursor:a]...)
		out = append(out, conflict.Block(src[a:end], h.After, labels)...)
		cursor = end
		res.conflicted++
	}

	res.lines = append(out, src[cursor:]...)
	return res
}

// covers reports whether the span [p, p+m) lies inside [q, q+n).
func covers(q, n, p, m int) bool {
	return p >= q && p+m <= q+n
}

// matchesAt reports whether pat sits at src[at:] without reaching before from.
func matchesAt(src, pat []string, from, at int) bool {
	return at >= from && at+len(pat) <= len(src) && matchAt(src, pat, at)
}

// search finds pat in src at or after from, nearest to anchor.
//
// Distances are tried in increasing order, up to maxOffset when it is
// positive. Two matches at the same smallest distance are ambiguous and
// count as not found. An empty pattern matches only at the anchor itself.
func search(src, pat []string, from, anchor, maxOffset int) (int, bool) {
	last := len(src) - len(pat)
	if len(pat) == 0 {
		return anchor, anchor >= from && anchor <= last
	}
	if last < from {
		return 0, false
	}

	for d := 0; maxOffset <= 0 || d <= maxOffset; d++ {
		down, up := anchor+d, anchor-d
		if down > last && up < from {
			break
		}
		hitDown := down >= from && down <= last && matchAt(src, pat, down)
		hitUp := d > 0 && up >= from && up <= last && matchAt(src, pat, up)
		switch {
		case hitDown && hitUp:
			return 0, false
		case hitDown:
			return down, true
		case hitUp:
			return up, true
		}
	}
	return 0, false
}

func matchAt(src, pat []string, at int) bool {
	for i, line := range pat {
		if src[at+i] != line {
			return false
		}
	}
	return true
}
