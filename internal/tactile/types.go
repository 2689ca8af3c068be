// Package tactile is the subprocess layer. Handlers that shell out (uv,
// python, npx, git) go through an Executor, which enforces the binary
// allow-list, a timeout, a scrubbed environment and an output cap.
package tactile

import (
	"strings"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "git", "npx").
	Binary string

	// Arguments are the command-line arguments.
	Arguments []string

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string

	// Environment variables to set (in KEY=VALUE format).
	// These are merged with the executor's allowed environment.
	Environment []string

	// Stdin provides input to the command's standard input.
	Stdin string

	// Timeout overrides the executor default when positive.
	Timeout time.Duration
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult captures the outcome of a finished command.
type ExecutionResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Combined string
	Duration time.Duration

	// Killed is set when the timeout or the caller's context ended the run.
	Killed     bool
	KillReason string

	Truncated      bool
	TruncatedBytes int64
}

// Succeeded reports a zero exit status on a run that was not killed.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && !r.Killed && r.ExitCode == 0
}

// Tail returns at most n trailing bytes of the combined output.
func (r *ExecutionResult) Tail(n int) string {
	out := strings.TrimSpace(r.Combined)
	if len(out) <= n {
		return out
	}
	return "..." + out[len(out)-n:]
}
