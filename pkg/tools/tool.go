// Package tools provides the MCP tool implementations and the registry that
// exposes them to the transport.
package tools

import (
	"context"
)

// InputSchema is the JSON Schema of a tool's arguments object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument in an InputSchema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ToolDefinition is the advertised shape of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// ExecResult is what a tool returns to the transport.
type ExecResult struct {
	// Content is the text sent to the model.
	Content string

	// Structured is the machine-readable form of Content, if any.
	Structured any

	// IsError marks a result the caller should treat as a tool-level failure.
	IsError bool
}

// Tool is a single MCP tool.
type Tool interface {
	// Name returns the registered tool name.
	Name() string

	// Definition returns the tool's advertised definition.
	Definition() ToolDefinition

	// PromptDocumentation returns markdown describing the tool for prompts and CLI help.
	PromptDocumentation() string

	// Exec runs the tool. Errors are reserved for failures outside the tool's
	// own result contract.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}
