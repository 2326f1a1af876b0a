package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"feedbackloop/pkg/feedback"
)

const requestFeedbackDescription = "Request interactive feedback from the user. Opens the feedback UI with " +
	"the given prompt and waits until the user submits feedback or closes the window."

// RequestFeedbackTool blocks until the user answers through the feedback UI.
type RequestFeedbackTool struct {
	invoker Invoker
}

// NewRequestFeedbackTool creates the tool around an invoker.
func NewRequestFeedbackTool(invoker Invoker) *RequestFeedbackTool {
	return &RequestFeedbackTool{invoker: invoker}
}

func createRequestFeedbackTool(ctx ToolContext) (Tool, error) {
	if ctx.Invoker == nil {
		return nil, fmt.Errorf("%s tool requires an invoker", ToolRequestFeedback)
	}
	return NewRequestFeedbackTool(ctx.Invoker), nil
}

func requestFeedbackSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			feedback.ArgProjectDirectory: {
				Type:        "string",
				Description: "Full path to the project directory the feedback is about",
			},
			feedback.ArgPrompt: {
				Type:        "string",
				Description: "Summary of the work done or the question to ask; markdown is rendered",
			},
			feedback.ArgQuickFeedbackOptions: {
				Type:        "array",
				Description: "Optional canned answers shown as buttons",
				Items:       &Property{Type: "string"},
			},
		},
		Required: []string{feedback.ArgProjectDirectory, feedback.ArgPrompt},
	}
}

// Name returns the tool identifier.
func (t *RequestFeedbackTool) Name() string {
	return ToolRequestFeedback
}

// Definition returns the tool's definition.
func (t *RequestFeedbackTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRequestFeedback,
		Description: requestFeedbackDescription,
		InputSchema: requestFeedbackSchema(),
	}
}

// PromptDocumentation returns markdown documentation for the tool.
func (t *RequestFeedbackTool) PromptDocumentation() string {
	return `- **request_feedback** - Ask the user for feedback and wait for the answer
  - Parameters: projectDirectory (string, required), prompt (string, required), quickFeedbackOptions (array of strings, optional)
  - Returns {status: success|cancelled|error, feedback, projectDirectory, message, recovered}
  - recovered=true means the answer was salvaged from malformed UI output`
}

// Exec runs one invocation. The envelope is returned both as JSON text and as
// structured content; an error envelope sets IsError.
func (t *RequestFeedbackTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	env := t.invoker.Invoke(ctx, args)

	content, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	return &ExecResult{
		Content:    string(content),
		Structured: env,
		IsError:    env.Status == feedback.StatusError,
	}, nil
}
