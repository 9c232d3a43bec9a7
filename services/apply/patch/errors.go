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
	"errors"
	"fmt"
)

// ErrMalformedDiff matches every error returned by Parse.
var ErrMalformedDiff = errors.New("malformed diff")

// MalformedError describes why a payload could not be turned into entries.
type MalformedError struct {
	// Index is the position of the offending file diff, or -1 when the
	// payload as a whole is unusable.
	Index int

	// Path is the offending path, when known.
	Path string

	// Reason is a human-readable explanation.
	Reason string

	// Err is the underlying parser error, if any.
	Err error
}

// Error implements error.
func (e *MalformedError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %s", ErrMalformedDiff, e.Reason)
	case e.Path == "":
		return fmt.Sprintf("%s: entry %d: %s", ErrMalformedDiff, e.Index, e.Reason)
	default:
		return fmt.Sprintf("%s: entry %d (%s): %s", ErrMalformedDiff, e.Index, e.Path, e.Reason)
	}
}

// Is reports whether target is ErrMalformedDiff.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedDiff
}

// Unwrap returns the underlying parser error.
func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(index int, path, format string, args ...any) *MalformedError {
	return &MalformedError{
		Index:  index,
		Path:   path,
		Reason: fmt.Sprintf(format, args...),
	}
}
