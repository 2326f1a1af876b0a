package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// LocalExec executes commands directly on the local system.
type LocalExec struct{}

// NewLocalExec creates a new LocalExec executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Name returns the executor type name.
func (e *LocalExec) Name() ExecutorType {
	return ExecutorTypeLocal
}

// Available returns true since local execution is always available.
func (e *LocalExec) Available() bool {
	return true
}

// Run starts the command, drains stdout and stderr until both close, then waits
// for exit. Stdin is left unconnected.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		defaults := DefaultExecOpts()
		opts = &defaults
	}

	startTime := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); err != nil {
			return Result{ExitCode: -1}, &StartError{Command: cmd[0], Err: fmt.Errorf("working directory: %w", err)}
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	if opts.Detach {
		detach(execCmd)
	}

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, &StartError{Command: cmd[0], Err: err}
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, &StartError{Command: cmd[0], Err: err}
	}

	if err := execCmd.Start(); err != nil {
		return Result{ExitCode: -1}, &StartError{Command: cmd[0], Err: err}
	}

	stdout, stderr, copyErr := drain(stdoutPipe, stderrPipe)

	// Pipes must be fully read before Wait closes them.
	waitErr := execCmd.Wait()

	result := Result{
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(startTime),
		ExitCode: exitCode(execCmd, waitErr),
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("wait for %s: %w", cmd[0], waitErr)
	}
	if copyErr != nil {
		return result, fmt.Errorf("capture output of %s: %w", cmd[0], copyErr)
	}
	return result, nil
}

// drain copies both streams concurrently so neither pipe can fill and block the child.
func drain(stdoutPipe, stderrPipe io.Reader) ([]byte, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdoutBuf, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderrBuf, stderrPipe)
		return err
	})
	err := g.Wait()
	return stdoutBuf.Bytes(), stderrBuf.String(), err
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
