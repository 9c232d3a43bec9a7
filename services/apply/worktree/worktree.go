// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worktree locates the version-controlled working tree a task is
// applied to.
package worktree

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// markerName is the entry that marks a working tree root. It may be a
// directory or, for linked worktrees and submodules, a file.
const markerName = ".git"

var (
	// ErrNotAVersionedTree is returned when no working tree root can be found.
	ErrNotAVersionedTree = errors.New("not a version-controlled working tree")

	// ErrOutsideTree is returned by Tree.Abs for paths that leave the root.
	ErrOutsideTree = errors.New("path escapes the working tree")
)

// Tree is a located working tree.
type Tree struct {
	// Root is the absolute, symlink-free directory holding the marker.
	Root string

	// Start is the resolved directory the search began from.
	Start string
}

// Locate finds the working tree that contains dir.
//
// # Description
//
// An empty dir means the process working directory, read at call time.
// The search walks upward from dir until it finds a ".git" entry. Locate
// has no side effects and never changes the process working directory.
//
// # Inputs
//
//   - dir: directory to start from, or "" for the current directory.
//
// # Outputs
//
//   - *Tree: the located tree.
//   - error: wraps ErrNotAVersionedTree when dir is not inside a working
//     tree, is missing, or is not a directory.
func Locate(dir string) (*Tree, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve working directory: %w", ErrNotAVersionedTree, err)
		}
		dir = cwd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve absolute path for %s: %w", ErrNotAVersionedTree, dir, err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrNotAVersionedTree, dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrNotAVersionedTree, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotAVersionedTree, abs)
	}

	current := abs
	for {
		found, err := hasMarker(current)
		if err != nil {
			return nil, err
		}
		if found {
			return &Tree{Root: current, Start: abs}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, fmt.Errorf("%w: no %s found from %s upward; run inside a repository or initialize one with `git init`",
		ErrNotAVersionedTree, markerName, abs)
}

// Abs returns the absolute location of a slash-separated, tree-relative
// path. It fails with ErrOutsideTree for absolute paths, paths that climb
// out of Root, and paths whose existing part resolves through a symlink
// to somewhere outside Root.
func (t *Tree) Abs(rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideTree, rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrOutsideTree, rel)
	}

	full := filepath.Join(t.Root, filepath.FromSlash(clean))
	within, err := filepath.Rel(t.Root, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideTree, rel)
	}
	if err := t.confined(full); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrOutsideTree, rel, err)
	}
	return full, nil
}

// confined resolves the deepest existing part of full and checks that it
// stays under Root. Root itself is symlink-free.
func (t *Tree) confined(full string) error {
	existing := full
	for existing != t.Root {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}
	if existing == t.Root {
		return nil
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", existing, err)
	}
	within, err := filepath.Rel(t.Root, resolved)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s resolves to %s", existing, resolved)
	}
	return nil
}

// hasMarker reports whether dir contains a ".git" directory or file.
func hasMarker(dir string) (bool, error) {
	p := filepath.Join(dir, markerName)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return info.IsDir() || info.Mode().IsRegular(), nil
}
