package feedback

import "encoding/json"

// Status is the caller-facing discriminant of an Envelope.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Envelope is the response returned to the MCP caller for one invocation.
type Envelope struct {
	Status           Status `json:"status"`
	Feedback         string `json:"feedback,omitempty"`
	ProjectDirectory string `json:"projectDirectory,omitempty"`
	Message          string `json:"message,omitempty"`

	// Recovered is set when the feedback text came from best-effort recovery of
	// malformed UI output rather than a clean parse.
	Recovered bool `json:"recovered,omitempty"`
}

// MarshalJSON always emits feedback on success, even when it is empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if e.Status != StatusSuccess {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Feedback string `json:"feedback"`
	}{plain(e), e.Feedback})
}

// EnvelopeFor maps a decoded Result to its envelope.
func EnvelopeFor(res Result) Envelope {
	switch res.Kind {
	case KindFeedback:
		return Envelope{Status: StatusSuccess, Feedback: res.Text, ProjectDirectory: res.ProjectDirectory}
	case KindDegraded:
		return Envelope{Status: StatusSuccess, Feedback: res.Text, ProjectDirectory: res.ProjectDirectory, Recovered: true}
	case KindCancelled:
		return Envelope{Status: StatusCancelled}
	default:
		return ErrorEnvelope("unknown result kind: " + string(res.Kind))
	}
}

// ErrorEnvelope builds an error envelope carrying message.
func ErrorEnvelope(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}
