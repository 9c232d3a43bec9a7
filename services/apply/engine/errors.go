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
	"errors"
	"fmt"
)

var (
	// ErrIO matches every *IOError.
	ErrIO = errors.New("file system operation failed")

	// ErrIsDirectory is wrapped when an entry targets a directory.
	ErrIsDirectory = errors.New("target is a directory")
)

// IOError is a file system failure unrelated to content conflicts. It
// aborts the run.
type IOError struct {
	// Op is the failed step: resolve, stat, read, mkdir, write or remove.
	Op string

	// Path is the repository-relative path of the entry being applied.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrIO, e.Op, e.Path, e.Err)
}

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

func ioError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}
