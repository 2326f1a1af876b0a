// Package exec provides the command execution abstraction used to launch the feedback UI.
package exec

import (
	"context"
	"fmt"
	"time"
)

// ExecutorType represents the type of executor.
type ExecutorType string

// ExecutorTypeLocal runs commands as direct child processes of the server.
const ExecutorTypeLocal ExecutorType = "local"

// Executor defines the interface for executing commands.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	// A non-zero exit code is reported in Result, not as an error.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type name for logging/debugging.
	Name() ExecutorType

	// Available returns true if this executor can be used in the current environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format) appended to the
	// server's own environment.
	Env []string

	// Timeout is the maximum duration for command execution. Zero means no limit.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string

	// Detach places the child in its own process group so terminal signals aimed
	// at the server do not reach it directly.
	Detach bool
}

// Result contains the result of command execution.
type Result struct {
	// Stdout contains the standard output, in the order it was written.
	Stdout []byte

	// Stderr contains the standard error output.
	Stderr string

	// Duration is how long the command took to execute.
	Duration time.Duration

	// ExitCode is the exit code of the command, -1 if it was killed by a signal
	// or never started.
	ExitCode int
}

// DefaultExecOpts returns default execution options: no timeout, detached.
func DefaultExecOpts() Opts {
	return Opts{Detach: true}
}

// StartError is returned when the command could not be started at all
// (executable missing, permission denied, bad working directory).
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
