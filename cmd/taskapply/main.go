// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command taskapply applies the diff of a remote coding task to the local
// working tree.
//
// Usage:
//
//	taskapply apply --task task.json [--repo DIR] [--json]
//	taskapply check --task task.json [--repo DIR]
//
// Exit codes: 0 on success, 1 when files were left with conflict markers,
// 2 on any other failure.
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
