package tools

// Tool name constants.
const (
	// ToolRequestFeedback asks the human for feedback through the UI.
	ToolRequestFeedback = "request_feedback"
)

// DefaultTools is the allow-list served when none is configured.
//
//nolint:gochecknoglobals // Read-only default list
var DefaultTools = []string{ToolRequestFeedback}
