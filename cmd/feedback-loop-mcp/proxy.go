package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedbackloop/pkg/mcpserver"
)

func newProxyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy <host:port>",
		Short: "Bridge stdio to a server started with serve --listen",
		Long: "Connect to a TCP-mode server, authenticate with the token from $" +
			mcpserver.AuthTokenEnvVar + " and relay MCP frames between stdin/stdout and the socket.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := os.Getenv(mcpserver.AuthTokenEnvVar)
			if token == "" {
				return fmt.Errorf("%s environment variable is required", mcpserver.AuthTokenEnvVar)
			}

			pc, err := mcpserver.Dial(cmd.Context(), args[0], token)
			if err != nil {
				return err
			}

			err = pc.Forward(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
