// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package task models a remotely produced coding task as returned by the
// task service, and extracts its diff payload.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// OutputTypePR marks the output item carrying the proposed diff.
const OutputTypePR = "pr"

var (
	// ErrNoDiff is returned when a response carries no diff payload.
	ErrNoDiff = errors.New("task has no diff to apply")

	// ErrInvalidTask wraps task file load and validation failures.
	ErrInvalidTask = errors.New("invalid task")
)

// taskValidate is the validator instance for task types.
var taskValidate = validator.New()

// Response is a task as returned by the task service.
type Response struct {
	Task                *Info `json:"task,omitempty"`
	CurrentDiffTaskTurn *Turn `json:"current_diff_task_turn" validate:"required"`
}

// Info identifies the task.
type Info struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Turn is one assistant turn of the task.
type Turn struct {
	ID          string       `json:"id,omitempty"`
	OutputItems []OutputItem `json:"output_items" validate:"dive"`
}

// OutputItem is one output of a turn. Only items of type "pr" carry a
// diff; other types are kept for completeness.
type OutputItem struct {
	Type       string      `json:"type" validate:"required"`
	PRTitle    string      `json:"pr_title,omitempty"`
	Content    string      `json:"content,omitempty"`
	OutputDiff *OutputDiff `json:"output_diff,omitempty"`
}

// OutputDiff wraps the unified diff text.
type OutputDiff struct {
	Diff string `json:"diff"`
}

// Validate checks the response structure.
func (r *Response) Validate() error {
	if err := taskValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

// ID returns the task id, or "" when the response has none.
func (r *Response) ID() string {
	if r == nil || r.Task == nil {
		return ""
	}
	return r.Task.ID
}

// ShortID returns at most the last eight characters of the task id, which
// is the distinguishing part of ids like "task_e_6845...".
func (r *Response) ShortID() string {
	id := r.ID()
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// Diff returns the diff of the first "pr" output item of the current turn.
// It fails with ErrNoDiff when there is none.
func (r *Response) Diff() (string, error) {
	if r == nil || r.CurrentDiffTaskTurn == nil {
		return "", fmt.Errorf("%w: response has no current diff turn", ErrNoDiff)
	}
	for _, item := range r.CurrentDiffTaskTurn.OutputItems {
		if item.Type != OutputTypePR {
			continue
		}
		if item.OutputDiff == nil {
			return "", fmt.Errorf("%w: pr output item has no output_diff", ErrNoDiff)
		}
		return item.OutputDiff.Diff, nil
	}
	return "", fmt.Errorf("%w: current turn has no pr output item", ErrNoDiff)
}

// Parse decodes and validates a JSON task response.
func Parse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidTask, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Load reads a JSON task response from path.
func Load(path string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidTask, path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
