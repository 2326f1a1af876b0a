package mcpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"feedbackloop/pkg/logx"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request or notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. ID is echoed verbatim;
// it is null when the request could not be parsed.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// lineWriter writes one JSON value per line; writes never interleave.
type lineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logx.Logger
}

func newLineWriter(w io.Writer, logger *logx.Logger) *lineWriter {
	return &lineWriter{w: w, logger: logger}
}

func (lw *lineWriter) write(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		lw.logger.Error("Failed to marshal response: %v", err)
		return false
	}
	data = append(data, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(data); err != nil {
		lw.logger.Debug("Failed to write response: %v", err)
		return false
	}
	return true
}
