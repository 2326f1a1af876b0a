package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"feedbackloop/pkg/logx"
	"feedbackloop/pkg/utils"
	"feedbackloop/pkg/version"
)

// Argument names of the request_feedback tool. The snake-case aliases are the
// names used by the original interactive_feedback tool.
const (
	ArgProjectDirectory     = "projectDirectory"
	ArgPrompt               = "prompt"
	ArgQuickFeedbackOptions = "quickFeedbackOptions"

	argProjectDirectoryAlias = "project_directory"
	argPromptAlias           = "summary"
)

// ErrInvalidArguments matches every argument validation failure.
var ErrInvalidArguments = errors.New("invalid arguments")

// Outcome names the terminal state an invocation ended in.
type Outcome string

const (
	OutcomeFeedback         Outcome = "feedback"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeDegraded         Outcome = "degraded"
	OutcomeInvalidArguments Outcome = "invalid_arguments"
	OutcomeLaunchFailure    Outcome = "launch_failure"
	OutcomeError            Outcome = "error"
)

// Record summarises one finished invocation for observers.
type Record struct {
	InvocationID     string
	ProjectDirectory string
	Prompt           string
	Outcome          Outcome
	Strategy         Strategy
	Feedback         string
	Message          string
	ExitCode         *int
	Duration         time.Duration
	Timestamp        time.Time
}

// Observer receives a Record after every invocation. Observer errors are logged
// and never change the envelope returned to the caller.
type Observer interface {
	Observe(ctx context.Context, rec Record) error
}

// Runner runs the UI subprocess for an invocation. *Supervisor implements it.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (SubprocessResult, error)
}

// Handler is the protocol-facing entry point for request_feedback.
type Handler struct {
	runner    Runner
	decoder   *Decoder
	observers []Observer
	logger    *logx.Logger
	now       func() time.Time
}

// NewHandler wires a handler. A nil decoder selects NewDecoder(0).
func NewHandler(runner Runner, decoder *Decoder, logger *logx.Logger, observers ...Observer) *Handler {
	if decoder == nil {
		decoder = NewDecoder(0)
	}
	if logger == nil {
		logger = logx.NewLogger("feedback")
	}
	return &Handler{
		runner:    runner,
		decoder:   decoder,
		observers: observers,
		logger:    logger,
		now:       time.Now,
	}
}

// ParseInvocation validates raw tool arguments and builds an Invocation with a
// fresh ID. Errors wrap ErrInvalidArguments.
func ParseInvocation(args map[string]any) (Invocation, error) {
	if args == nil {
		return Invocation{}, fmt.Errorf("%w: arguments object is required", ErrInvalidArguments)
	}

	projectDir, err := utils.GetMapField[string](args, ArgProjectDirectory, argProjectDirectoryAlias)
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if projectDir == "" {
		return Invocation{}, fmt.Errorf("%w: %s must not be empty", ErrInvalidArguments, ArgProjectDirectory)
	}

	prompt, err := utils.GetMapField[string](args, ArgPrompt, argPromptAlias)
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	options, err := utils.StringSlice(args[ArgQuickFeedbackOptions])
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, ArgQuickFeedbackOptions, err)
	}

	return Invocation{
		ID:                   uuid.NewString(),
		ProjectDirectory:     projectDir,
		Prompt:               prompt,
		QuickFeedbackOptions: options,
	}, nil
}

// Invoke runs one request end to end and always returns exactly one envelope.
func (h *Handler) Invoke(ctx context.Context, args map[string]any) (env Envelope) {
	start := h.now()
	rec := Record{Timestamp: start}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Invocation %s panicked: %v", rec.InvocationID, r)
			env = ErrorEnvelope(fmt.Sprintf("internal error: %v", r))
			rec.Outcome = OutcomeError
			rec.Message = env.Message
		}
		rec.Duration = h.now().Sub(start)
		h.notify(ctx, rec)
	}()

	inv, err := ParseInvocation(args)
	if err != nil {
		h.logger.Warn("Rejected feedback request: %v", err)
		rec.Outcome = OutcomeInvalidArguments
		rec.Message = err.Error()
		return ErrorEnvelope(err.Error())
	}

	rec.InvocationID = inv.ID
	rec.ProjectDirectory = inv.ProjectDirectory
	rec.Prompt = inv.Prompt

	ctx = logx.WithInvocationID(ctx, inv.ID)
	logx.DebugState(ctx, "handler", "validating", "spawning")
	h.logDiagnostics(inv)

	sub, err := h.runner.Run(ctx, inv)
	if err != nil {
		rec.Outcome = OutcomeError
		if errors.Is(err, ErrLaunchFailure) {
			rec.Outcome = OutcomeLaunchFailure
		}
		rec.Message = err.Error()
		h.logger.Error("Feedback UI failed: invocation=%s: %v", inv.ID, err)
		return ErrorEnvelope(err.Error())
	}
	rec.ExitCode = sub.ExitCode

	logx.DebugState(ctx, "handler", "awaiting_exit", "decoding")
	res := h.decoder.Decode(ctx, sub.RawOutput, inv.ProjectDirectory)

	rec.Strategy = res.Strategy
	rec.Feedback = res.Text
	switch res.Kind {
	case KindFeedback:
		rec.Outcome = OutcomeFeedback
	case KindCancelled:
		rec.Outcome = OutcomeCancelled
	case KindDegraded:
		rec.Outcome = OutcomeDegraded
		h.logger.Warn("Recovered feedback from malformed UI output: invocation=%s strategy=%s", inv.ID, res.Strategy)
	}
	logx.DebugState(ctx, "handler", "decoding", string(rec.Outcome))

	return EnvelopeFor(res)
}

// logDiagnostics emits the per-spawn operability record.
func (h *Handler) logDiagnostics(inv Invocation) {
	h.logger.Info("Requesting feedback: invocation=%s project=%s options=%d platform=%s/%s go=%s server=%s pid=%d",
		inv.ID, inv.ProjectDirectory, len(inv.QuickFeedbackOptions),
		runtime.GOOS, runtime.GOARCH, runtime.Version(), version.Version, os.Getpid())
}

func (h *Handler) notify(ctx context.Context, rec Record) {
	for _, obs := range h.observers {
		if err := obs.Observe(ctx, rec); err != nil {
			h.logger.Warn("Observer failed for invocation %s: %v", rec.InvocationID, err)
		}
	}
}
