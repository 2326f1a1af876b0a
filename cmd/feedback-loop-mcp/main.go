// feedback-loop-mcp is an MCP server exposing a request_feedback tool that asks
// the human for feedback through a desktop UI and returns the answer.
//
// Usage:
//
//	feedback-loop-mcp serve                        # stdio, as launched by MCP clients
//	feedback-loop-mcp serve --listen 127.0.0.1:0   # loopback TCP with an auth token
//	FEEDBACK_LOOP_TOKEN=... feedback-loop-mcp proxy 127.0.0.1:4567
//	feedback-loop-mcp ask --prompt "Review this"
//	feedback-loop-mcp history --limit 20
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// SIGINT/SIGTERM cancel the context, which also terminates a running UI.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
