// Package feedback implements the request-feedback orchestration: it launches the
// interactive feedback UI as a subprocess, captures its output, decodes that output
// into a Result and maps the Result into the response envelope returned to MCP callers.
package feedback

import (
	"time"
)

// Invocation is one accepted request to collect feedback. It is immutable once
// ParseInvocation returns it.
type Invocation struct {
	// ID identifies the invocation in logs and history.
	ID string

	// ProjectDirectory is passed through to the UI; it is not checked for existence.
	ProjectDirectory string

	// Prompt is shown to the user, may contain markdown.
	Prompt string

	// QuickFeedbackOptions are canned answers offered by the UI, in order.
	QuickFeedbackOptions []string
}

// SubprocessResult is the outcome of running the UI subprocess once.
type SubprocessResult struct {
	// RawOutput is everything the UI wrote to stdout, in order.
	RawOutput []byte

	// ExitCode is nil only when the process never started.
	ExitCode *int

	// Stderr is diagnostic only and never drives control decisions.
	Stderr string

	// Duration is the wall time between spawn and exit.
	Duration time.Duration
}

// Kind discriminates the Result variants.
type Kind string

const (
	// KindFeedback means the user submitted text and it parsed cleanly.
	KindFeedback Kind = "feedback"
	// KindCancelled means the user closed the UI without submitting.
	KindCancelled Kind = "cancelled"
	// KindDegraded means usable text was recovered from malformed output.
	KindDegraded Kind = "degraded"
)

// Strategy names the decoder step that produced a Result.
type Strategy string

const (
	StrategyEmpty   Strategy = "empty"
	StrategyWhole   Strategy = "whole"
	StrategySegment Strategy = "segment"
	StrategyField   Strategy = "field"
	StrategyFence   Strategy = "fence"
	StrategyRaw     Strategy = "raw"
)

// Result is the decoded answer for one invocation. Use the constructors; a
// Degraded result is never turned into a Feedback result.
type Result struct {
	Kind             Kind
	Text             string
	ProjectDirectory string
	Strategy         Strategy
}

// NewFeedback returns a clean feedback result.
func NewFeedback(text, projectDir string, strategy Strategy) Result {
	return Result{Kind: KindFeedback, Text: text, ProjectDirectory: projectDir, Strategy: strategy}
}

// NewCancelled returns a cancellation result.
func NewCancelled(projectDir string, strategy Strategy) Result {
	return Result{Kind: KindCancelled, ProjectDirectory: projectDir, Strategy: strategy}
}

// NewDegraded returns a best-effort recovery result.
func NewDegraded(recovered, projectDir string, strategy Strategy) Result {
	return Result{Kind: KindDegraded, Text: recovered, ProjectDirectory: projectDir, Strategy: strategy}
}

// UIPayload is the object the UI writes to stdout exactly once before exiting.
type UIPayload struct {
	Feedback         string `json:"feedback"`
	Cancelled        bool   `json:"cancelled,omitempty"`
	Timestamp        string `json:"timestamp"`
	ProjectDirectory string `json:"projectDirectory"`
}
