package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"feedbackloop/pkg/exec"
	"feedbackloop/pkg/logx"
)

// UI argument flags understood by the feedback UI.
const (
	FlagProjectDirectory     = "--project-directory"
	FlagPrompt               = "--prompt"
	FlagQuickFeedbackOptions = "--quick-feedback-options"
)

// DefaultUICommand is the UI executable launched when none is configured.
var DefaultUICommand = []string{"feedback-loop-ui"} //nolint:gochecknoglobals

// ErrLaunchFailure matches any error returned when the UI could not be started.
var ErrLaunchFailure = errors.New("launch failure")

// LaunchError reports that the UI subprocess could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("Failed to start feedback UI (%s): %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLaunchFailure) true for any *LaunchError.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunchFailure
}

// Supervisor launches one UI subprocess per invocation and waits for it to exit.
// It never retries and imposes no timeout of its own.
type Supervisor struct {
	executor exec.Executor
	command  []string
	opts     exec.Opts
	logger   *logx.Logger
}

// NewSupervisor creates a supervisor running command (executable plus leading
// arguments) through executor. An empty command selects DefaultUICommand.
func NewSupervisor(executor exec.Executor, command []string, opts exec.Opts, logger *logx.Logger) *Supervisor {
	if len(command) == 0 {
		command = DefaultUICommand
	}
	if logger == nil {
		logger = logx.NewLogger("supervisor")
	}
	return &Supervisor{
		executor: executor,
		command:  append([]string(nil), command...),
		opts:     opts,
		logger:   logger,
	}
}

// BuildArgs returns the UI argument list for inv: project directory, prompt and,
// only when there are any, the JSON-encoded quick feedback options.
func BuildArgs(inv Invocation) []string {
	args := []string{
		FlagProjectDirectory, inv.ProjectDirectory,
		FlagPrompt, inv.Prompt,
	}
	if len(inv.QuickFeedbackOptions) > 0 {
		// Marshalling a []string cannot fail.
		encoded, _ := json.Marshal(inv.QuickFeedbackOptions)
		args = append(args, FlagQuickFeedbackOptions, string(encoded))
	}
	return args
}

// Command returns the full argv used for inv.
func (s *Supervisor) Command(inv Invocation) []string {
	argv := append([]string(nil), s.command...)
	return append(argv, BuildArgs(inv)...)
}

// Run spawns the UI, accumulates its output until it exits and returns it. Any
// exit code counts as a normal exit. A *LaunchError is returned when the process
// could not be started.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) (SubprocessResult, error) {
	argv := s.Command(inv)
	opts := s.opts

	logx.Debug(ctx, "supervisor", "spawning %s with %d argument(s)", argv[0], len(argv)-1)

	res, err := s.executor.Run(ctx, argv, &opts)
	if err != nil {
		var startErr *exec.StartError
		if errors.As(err, &startErr) {
			return SubprocessResult{}, &LaunchError{Command: argv[0], Err: startErr.Err}
		}
		return SubprocessResult{}, fmt.Errorf("run feedback UI: %w", err)
	}

	exitCode := res.ExitCode
	if res.Stderr != "" {
		logx.Debug(ctx, "supervisor", "UI stderr: %s", res.Stderr)
	}
	s.logger.Info("Feedback UI exited: invocation=%s code=%d stdout=%dB duration=%s",
		inv.ID, exitCode, len(res.Stdout), res.Duration)

	return SubprocessResult{
		RawOutput: res.Stdout,
		ExitCode:  &exitCode,
		Stderr:    res.Stderr,
		Duration:  res.Duration,
	}, nil
}
