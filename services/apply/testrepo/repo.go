// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testrepo creates throwaway git working trees for tests.
package testrepo

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TempRepo is a temporary working tree rooted at Root.
type TempRepo struct {
	Root string

	// real is true when the tree was initialized by the git binary.
	real bool
}

// New creates a temporary git repository with an initial commit containing
// README.md. The test is skipped when git is not installed.
func New(tb testing.TB) *TempRepo {
	tb.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		tb.Skip("git binary not available")
	}

	repo := &TempRepo{Root: canonical(tb, tb.TempDir()), real: true}
	repo.RunGit(tb, "init", "--initial-branch=main")
	repo.RunGit(tb, "config", "user.name", "Taskapply Test")
	repo.RunGit(tb, "config", "user.email", "test@example.com")

	repo.WriteFile(tb, "README.md", "# Test Repo\n")
	repo.Commit(tb, "Initial commit", "README.md")
	return repo
}

// Fake creates a temporary tree that only carries an empty .git directory.
// It is enough for root discovery and needs no git binary.
func Fake(tb testing.TB) *TempRepo {
	tb.Helper()
	root := canonical(tb, tb.TempDir())
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		tb.Fatalf("create .git: %v", err)
	}
	return &TempRepo{Root: root}
}

// RunGit executes git in the repository directory and fails the test if git
// returns an error.
func (r *TempRepo) RunGit(tb testing.TB, args ...string) string {
	tb.Helper()
	output, err := runGit(r.Root, args...)
	if err != nil {
		tb.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, output)
	}
	return output
}

// Commit stages paths and commits them. It is a no-op for fake trees.
func (r *TempRepo) Commit(tb testing.TB, message string, paths ...string) {
	tb.Helper()
	if !r.real {
		return
	}
	r.RunGit(tb, append([]string{"add", "--"}, paths...)...)
	r.RunGit(tb, "commit", "-m", message)
}

// Path returns the absolute path of a repository-relative file.
func (r *TempRepo) Path(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// WriteFile writes content to rel, creating parent directories.
func (r *TempRepo) WriteFile(tb testing.TB, rel, content string) {
	tb.Helper()
	path := r.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", rel, err)
	}
}

// ReadFile returns the content of rel and fails the test when it is missing.
func (r *TempRepo) ReadFile(tb testing.TB, rel string) string {
	tb.Helper()
	data, err := os.ReadFile(r.Path(rel))
	if err != nil {
		tb.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether rel exists.
func (r *TempRepo) Exists(rel string) bool {
	_, err := os.Lstat(r.Path(rel))
	return err == nil
}

// Snapshot returns every regular file under Root, outside .git, keyed by
// slash-separated relative path.
func (r *TempRepo) Snapshot(tb testing.TB) map[string]string {
	tb.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(r.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.Root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		tb.Fatalf("snapshot %s: %v", r.Root, err)
	}
	return files
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(output), fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return string(output), err
	}
	return string(output), nil
}

// canonical resolves symlinks so paths compare equal to discovered roots.
func canonical(tb testing.TB, path string) string {
	tb.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		tb.Fatalf("eval symlinks %s: %v", path, err)
	}
	return resolved
}
