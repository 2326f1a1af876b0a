// Package mcpserver implements a line-delimited JSON-RPC 2.0 MCP server that
// exposes the feedback tools.
//
// Two transports are supported. Serve speaks the protocol over a reader/writer
// pair, which is how MCP clients launch the server (stdin/stdout). Start listens
// on a loopback TCP port instead; TCP clients must send an auth token as their
// first line.
package mcpserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"feedbackloop/pkg/logx"
	"feedbackloop/pkg/tools"
	"feedbackloop/pkg/version"
)

// ProtocolVersion is the MCP revision announced in initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// DefaultListenAddr binds TCP mode to an OS-assigned loopback port.
const DefaultListenAddr = "127.0.0.1:0"

// Options configures a Server.
type Options struct {
	// Name and Version are reported as serverInfo.
	Name    string
	Version string

	// ListenAddr is the TCP address used by Start.
	ListenAddr string
}

// Server is an MCP server exposing the tools of a ToolProvider.
type Server struct {
	toolProvider *tools.ToolProvider
	logger       *logx.Logger
	opts         Options
	authToken    string

	// callMu serializes tool calls across all connections.
	callMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	port     int
	running  bool
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates a new MCP server with a randomly generated auth token.
func NewServer(toolProvider *tools.ToolProvider, logger *logx.Logger, opts Options) *Server {
	if logger == nil {
		logger = logx.NewLogger("mcp-server")
	}
	if opts.Name == "" {
		opts.Name = "feedback-loop"
	}
	if opts.Version == "" {
		opts.Version = version.Version
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	return &Server{
		toolProvider: toolProvider,
		logger:       logger,
		opts:         opts,
		authToken:    generateToken(),
		conns:        make(map[net.Conn]struct{}),
		ready:        make(chan struct{}),
	}
}

// generateToken creates a cryptographically random 32-byte hex token.
func generateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Serve processes requests read from r and writes responses to w until r is
// exhausted or ctx is cancelled. Requests are handled one at a time.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("MCP server serving on stdio")
	out := newLineWriter(w, s.logger)
	err := s.processLines(ctx, bufio.NewReader(r), out)
	if errors.Is(err, io.EOF) {
		s.logger.Info("MCP client closed the stream")
		return nil
	}
	return err
}

// processLines reads line-delimited JSON-RPC messages until EOF or ctx is done.
func (s *Server) processLines(ctx context.Context, reader *bufio.Reader, out *lineWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			s.handleLine(ctx, out, line)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) handleLine(ctx context.Context, out *lineWriter, line []byte) {
	var request JSONRPCRequest
	if err := json.Unmarshal(line, &request); err != nil {
		s.sendError(out, nil, CodeParseError, "Parse error", err.Error())
		return
	}
	if request.Method == "" {
		s.sendError(out, request.ID, CodeInvalidRequest, "Invalid Request", "method is required")
		return
	}
	s.handleRequest(ctx, out, &request)
}

// Start listens on the configured TCP address and serves connections until
// Stop is called or ctx is cancelled. Use Ready and Port to learn the bound port.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	listener, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to listen on TCP: %w", err)
	}

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		s.mu.Unlock()
		cancel()
		_ = listener.Close()
		return fmt.Errorf("unexpected listener address type: %T", listener.Addr())
	}
	s.port = addr.Port
	s.listener = listener
	s.running = true
	s.readyOnce.Do(func() { close(s.ready) })
	s.mu.Unlock()

	s.logger.Info("MCP server listening on %s", addr)

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection: %v", err)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.cancel != nil {
		s.cancel()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("failed to close listener: %w", err)
		}
	}

	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Ready is closed once Start has bound its listener.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the TCP port the server is listening on, 0 before Start binds.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Token returns the auth token that TCP clients must provide.
func (s *Server) Token() string {
	return s.authToken
}

// authMessage is the expected first message from TCP clients.
type authMessage struct {
	Auth string `json:"auth"`
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close() //nolint:errcheck // Best-effort close on defer

	s.logger.Debug("New connection from %s", conn.RemoteAddr())

	reader := bufio.NewReader(conn)
	out := newLineWriter(conn, s.logger)

	if !s.authenticateConnection(reader, out) {
		return
	}

	if err := s.processLines(ctx, reader, out); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("Connection closed: %v", err)
	}
}

// authenticateConnection validates the first line as an auth message.
func (s *Server) authenticateConnection(reader *bufio.Reader, out *lineWriter) bool {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.logger.Debug("Failed to read auth message: %v", err)
		return false
	}

	var auth authMessage
	if err := json.Unmarshal(line, &auth); err != nil {
		s.logger.Warn("Invalid auth message format: %v", err)
		out.write(map[string]any{"authenticated": false, "error": "Invalid auth message format"})
		return false
	}

	if auth.Auth != s.authToken {
		s.logger.Warn("Invalid auth token from client")
		out.write(map[string]any{"authenticated": false, "error": "Invalid auth token"})
		return false
	}

	s.logger.Debug("Client authenticated successfully")
	return out.write(map[string]any{"authenticated": true})
}

// handleRequest dispatches a JSON-RPC request to the appropriate handler.
// Notifications (no id) never receive a response.
func (s *Server) handleRequest(ctx context.Context, out *lineWriter, req *JSONRPCRequest) {
	if req.IsNotification() {
		s.logger.Debug("Notification: %s", req.Method)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(out, req)
	case "ping":
		s.sendResult(out, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(out, req)
	case "tools/call":
		s.handleToolsCall(ctx, out, req)
	default:
		s.sendError(out, req.ID, CodeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) handleInitialize(out *lineWriter, req *JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.opts.Name,
			"version": s.opts.Version,
		},
	}
	s.sendResult(out, req.ID, result)
}

func (s *Server) handleToolsList(out *lineWriter, req *JSONRPCRequest) {
	metas := s.toolProvider.List()

	defs := make([]tools.ToolDefinition, 0, len(metas))
	for i := range metas {
		defs = append(defs, tools.ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		})
	}

	s.sendResult(out, req.ID, map[string]any{"tools": defs})
}

// toolCallResult is the MCP CallToolResult shape.
type toolCallResult struct {
	Content           []textContent `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleToolsCall(ctx context.Context, out *lineWriter, req *JSONRPCRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(out, req.ID, CodeInvalidParams, "Invalid params", err.Error())
		return
	}

	s.logger.Info("MCP tool call: %s", params.Name)

	tool, err := s.toolProvider.Get(params.Name)
	if err != nil {
		s.logger.Warn("Tool not found: %s - %v", params.Name, err)
		s.sendError(out, req.ID, CodeInvalidParams, "Tool not found", err.Error())
		return
	}

	s.callMu.Lock()
	result, err := tool.Exec(ctx, params.Arguments)
	s.callMu.Unlock()

	if err != nil {
		s.logger.Warn("MCP tool %s failed: %v", params.Name, err)
		s.sendResult(out, req.ID, toolCallResult{
			Content: []textContent{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		})
		return
	}

	preview := result.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	s.logger.Info("MCP tool %s finished (isError=%t): %s", params.Name, result.IsError, preview)

	s.sendResult(out, req.ID, toolCallResult{
		Content:           []textContent{{Type: "text", Text: result.Content}},
		StructuredContent: result.Structured,
		IsError:           result.IsError,
	})
}

func (s *Server) sendResult(out *lineWriter, id json.RawMessage, result any) {
	out.write(&JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *Server) sendError(out *lineWriter, id json.RawMessage, code int, message, data string) {
	out.write(&JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}
