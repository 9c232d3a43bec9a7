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
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taskapply/services/apply/config"
	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/engine"
	"github.com/AleutianAI/taskapply/services/apply/patch"
	"github.com/AleutianAI/taskapply/services/apply/testrepo"
	"github.com/AleutianAI/taskapply/services/apply/worktree"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeTaskFile(t *testing.T, diff string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.json")
	require.NoError(t, os.WriteFile(path, []byte(testrepo.TaskJSON(diff)), 0o644))
	return path
}

func decodeApplyReport(t *testing.T, out string) applyReport {
	t.Helper()
	var report applyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), "stdout: %s", out)
	return report
}

// =============================================================================
// apply
// =============================================================================

func TestApply_Clean(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root)
	require.Equal(t, exitOK, res.code, "stderr: %s", res.stderr)

	report := decodeApplyReport(t, res.stdout)
	assert.Equal(t, "task_e_fixture", report.TaskID)
	assert.Equal(t, exitOK, report.ExitCode)
	assert.Empty(t, report.Error)
	require.NotNil(t, report.Outcome)
	assert.Equal(t, []string{testrepo.FibonacciPath}, report.Outcome.Applied)
	require.Len(t, report.Outcome.Files, 1)
	assert.Equal(t, engine.StateApplied, report.Outcome.Files[0].State)

	assert.Equal(t, testrepo.FibonacciJS, repo.ReadFile(t, testrepo.FibonacciPath))
}

func TestApply_ConflictExitsWithOne(t *testing.T) {
	repo := testrepo.Fake(t)
	repo.WriteFile(t, testrepo.FibonacciPath, testrepo.ConflictingFibonacciJS)
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root, "--json")
	assert.Equal(t, exitConflict, res.code)

	report := decodeApplyReport(t, res.stdout)
	assert.Equal(t, exitConflict, report.ExitCode)
	assert.Contains(t, report.Error, "merge conflict")
	assert.Contains(t, report.Error, testrepo.FibonacciPath)
	assert.Equal(t, []string{testrepo.FibonacciPath}, report.Outcome.Conflicted)

	content := repo.ReadFile(t, testrepo.FibonacciPath)
	assert.True(t, conflict.HasMarkers(content))
	assert.Contains(t, content, ">>>>>>> task _fixture\n")
	assert.Positive(t, report.Markers[testrepo.FibonacciPath])
	assert.Equal(t, conflict.Count(content), report.Markers[testrepo.FibonacciPath])
}

func TestApply_ConfigFileInRepository(t *testing.T) {
	repo := testrepo.Fake(t)
	repo.WriteFile(t, config.DefaultFileName, "conflict:\n  theirs_label: incoming\n  task_id_in_label: false\n")
	repo.WriteFile(t, "notes.txt", "mine\n")
	taskPath := writeTaskFile(t, testrepo.NewFileDiff("notes.txt", "theirs\n"))

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root)
	assert.Equal(t, exitConflict, res.code)
	assert.Equal(t, "<<<<<<< HEAD\nmine\n=======\ntheirs\n>>>>>>> incoming\n", repo.ReadFile(t, "notes.txt"))
	assert.Equal(t, map[string]int{"notes.txt": 1}, decodeApplyReport(t, res.stdout).Markers)
}

func TestApply_NotAVersionedTree(t *testing.T) {
	dir := t.TempDir()
	if _, err := worktree.Locate(dir); err == nil {
		t.Skip("temporary directory is inside a repository")
	}
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())

	res := runCLI(t, "apply", "--task", taskPath, "--repo", dir)
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "ERROR: ")
	assert.Contains(t, res.stderr, "git init")

	report := decodeApplyReport(t, res.stdout)
	assert.Equal(t, exitFailure, report.ExitCode)
	assert.Nil(t, report.Outcome)
}

func TestApply_MalformedDiff(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, "this is not a diff\n")

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root)
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, decodeApplyReport(t, res.stdout).Error, "malformed diff")
}

func TestApply_InvalidInvocation(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())

	tests := []struct {
		name string
		args []string
	}{
		{"missing_task_flag", []string{"apply"}},
		{"unknown_flag", []string{"apply", "--task", taskPath, "--bogus"}},
		{"positional_args", []string{"apply", "--task", taskPath, "extra"}},
		{"bad_log_level", []string{"apply", "--task", taskPath, "--repo", repo.Root, "--log-level", "loud"}},
		{"missing_task_file", []string{"apply", "--task", filepath.Join(t.TempDir(), "none.json"), "--repo", repo.Root}},
		{"missing_config_file", []string{"apply", "--task", taskPath, "--repo", repo.Root, "--config", filepath.Join(t.TempDir(), "none.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.args...)
			assert.Equal(t, exitFailure, res.code)
			assert.NotEmpty(t, res.stderr)
		})
	}
	assert.False(t, repo.Exists(testrepo.FibonacciPath))
}

func TestApply_MetricsFile(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())
	metrics := filepath.Join(t.TempDir(), "taskapply.prom")

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root, "--metrics-file", metrics)
	require.Equal(t, exitOK, res.code, "stderr: %s", res.stderr)

	_, err := os.Stat(metrics)
	assert.NoError(t, err)
}

func TestApply_LogDir(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, testrepo.FibonacciDiff())
	logDir := t.TempDir()

	res := runCLI(t, "apply", "--task", taskPath, "--repo", repo.Root, "--log-dir", logDir, "--log-level", "debug")
	require.Equal(t, exitOK, res.code, "stderr: %s", res.stderr)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Apply finished")
	assert.Contains(t, string(data), `"command":"apply"`)
	assert.Contains(t, string(data), "Logging to file")
	assert.Contains(t, res.stderr, "Apply finished")
	assert.Contains(t, res.stderr, "Task loaded")
}

// =============================================================================
// check
// =============================================================================

func TestCheck_PrintsPlanWithoutApplying(t *testing.T) {
	repo := testrepo.Fake(t)
	diff := testrepo.FibonacciDiff() + testrepo.DeleteFileDiff("old.txt", "bye\n")
	taskPath := writeTaskFile(t, diff)

	res := runCLI(t, "check", "--task", taskPath, "--repo", repo.Root)
	require.Equal(t, exitOK, res.code, "stderr: %s", res.stderr)

	var report planReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, "task_e_fixture", report.TaskID)
	assert.Equal(t, repo.Root, report.Root)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, planEntry{Index: 0, Path: testrepo.FibonacciPath, Op: patch.KindCreate, Added: 31}, report.Entries[0])
	assert.Equal(t, planEntry{Index: 1, Path: "old.txt", Op: patch.KindDelete, Removed: 1}, report.Entries[1])

	assert.False(t, repo.Exists(testrepo.FibonacciPath))
}

func TestCheck_FlagsUnresolvedMarkers(t *testing.T) {
	repo := testrepo.Fake(t)
	marked := "<<<<<<< HEAD\nmine\n=======\ntheirs\n>>>>>>> task\n"
	repo.WriteFile(t, "notes.txt", marked)
	repo.WriteFile(t, "clean.txt", "bye\n")
	taskPath := writeTaskFile(t, testrepo.DeleteFileDiff("notes.txt", "mine\n")+testrepo.DeleteFileDiff("clean.txt", "bye\n"))

	res := runCLI(t, "check", "--task", taskPath, "--repo", repo.Root)
	require.Equal(t, exitOK, res.code, "stderr: %s", res.stderr)

	var report planReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	require.Len(t, report.Entries, 2)
	assert.True(t, report.Entries[0].UnresolvedMarkers)
	assert.False(t, report.Entries[1].UnresolvedMarkers)
	assert.Equal(t, marked, repo.ReadFile(t, "notes.txt"))
}

func TestCheck_MalformedDiff(t *testing.T) {
	repo := testrepo.Fake(t)
	taskPath := writeTaskFile(t, testrepo.NewFileDiff("/etc/passwd", "x\n"))

	res := runCLI(t, "check", "--task", taskPath, "--repo", repo.Root)
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "malformed diff")
}

// =============================================================================
// Helpers
// =============================================================================

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitConflict, exitCode(&conflict.MergeConflictError{Paths: []string{"a"}}))
	assert.Equal(t, exitFailure, exitCode(errors.New("disk full")))
	assert.Equal(t, exitFailure, exitCode(&engine.IOError{Op: "write", Path: "a", Err: os.ErrPermission}))
}

func TestStyled_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, (&globalOptions{stdout: &buf}).styled())
	assert.False(t, (&globalOptions{stdout: os.Stdout, jsonOutput: true}).styled())
}
