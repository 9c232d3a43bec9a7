// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testrepo

import (
	"fmt"
	"strings"
)

// FibonacciPath is where the fixture task creates its script.
const FibonacciPath = "scripts/fibonacci.js"

// FibonacciJS is the 31-line script the fixture task creates.
const FibonacciJS = `#!/usr/bin/env node

/**
 * Calculate the nth Fibonacci number.
 * @param {number} n - Index in the sequence (0-based).
 * @returns {number} The nth Fibonacci number.
 */
function fibonacci(n) {
  if (n < 0) {
    throw new Error("n must be non-negative");
  }
  if (n <= 1) {
    return n;
  }
  let prev = 0;
  let curr = 1;
  for (let i = 2; i <= n; i++) {
    const next = prev + curr;
    prev = curr;
    curr = next;
  }
  return curr;
}

if (require.main === module) {
  const n = parseInt(process.argv[2] ?? "10", 10);
  console.log(fibonacci(n));
}

// CommonJS export for reuse.
module.exports = fibonacci;
`

// ConflictingFibonacciJS is a local implementation that diverges from the
// fixture task.
const ConflictingFibonacciJS = `#!/usr/bin/env node

// This is a different fibonacci implementation
function fib(num) {
  if (num <= 1) return num;
  return fib(num - 1) + fib(num - 2);
}

console.log("Running fibonacci...");
console.log(fib(10));
`

// FibonacciDiff is the fixture task's patch payload.
func FibonacciDiff() string {
	return NewFileDiff(FibonacciPath, FibonacciJS)
}

// NewFileDiff renders a git-style diff that creates path with content.
func NewFileDiff(path, content string) string {
	lines := splitKeep(content)
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n")
	b.WriteString("index 0000000..1111111\n")
	b.WriteString("--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	writeSide(&b, '+', lines)
	return b.String()
}

// DeleteFileDiff renders a git-style diff that deletes path with content.
func DeleteFileDiff(path, content string) string {
	lines := splitKeep(content)
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("deleted file mode 100644\n")
	b.WriteString("index 1111111..0000000\n")
	fmt.Fprintf(&b, "--- a/%s\n", path)
	b.WriteString("+++ /dev/null\n")
	fmt.Fprintf(&b, "@@ -1,%d +0,0 @@\n", len(lines))
	writeSide(&b, '-', lines)
	return b.String()
}

func writeSide(b *strings.Builder, prefix byte, lines []string) {
	for _, line := range lines {
		b.WriteByte(prefix)
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n\\ No newline at end of file\n")
		}
	}
}

func splitKeep(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// TaskJSON wraps a diff in the task response wire shape.
func TaskJSON(diff string) string {
	return fmt.Sprintf(`{
  "task": {"id": "task_e_fixture", "title": "Add fibonacci script"},
  "current_diff_task_turn": {
    "id": "turn_fixture",
    "output_items": [
      {"type": "message", "content": "Added scripts/fibonacci.js"},
      {"type": "pr", "pr_title": "Add fibonacci script", "output_diff": {"diff": %q}}
    ]
  }
}`, diff)
}
