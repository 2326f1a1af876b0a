package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feedbackloop/pkg/mcpserver"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio by default)",
		Long: "Run the MCP server. Without --listen the protocol is spoken on stdin/stdout " +
			"and logs go to stderr. With --listen the server accepts loopback TCP clients " +
			"that authenticate with the printed token.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			server := mcpserver.NewServer(a.provider, nil, mcpserver.Options{
				Name:       cfg.Server.Name,
				Version:    cfg.Server.Version,
				ListenAddr: listen,
			})

			g, ctx := errgroup.WithContext(cmd.Context())

			if cfg.Metrics.Listen != "" {
				g.Go(func() error {
					return a.recorder.ListenAndServe(ctx, cfg.Metrics.Listen)
				})
			}

			if listen == "" {
				g.Go(func() error {
					return serveStdio(ctx, server)
				})
			} else {
				g.Go(func() error {
					return serveTCP(ctx, cmd, server)
				})
			}

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				a.logger.Info("Shutting down")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Serve on a loopback TCP address (e.g. 127.0.0.1:0) instead of stdio")
	return cmd
}

// serveStdio returns when stdin closes or ctx is cancelled. A read blocked on
// stdin is abandoned on cancellation; the process exits right after.
func serveStdio(ctx context.Context, server *mcpserver.Server) error {
	done := make(chan error, 1)
	go func() {
		err := server.Serve(ctx, os.Stdin, os.Stdout)
		if err == nil {
			// Client went away; stop the metrics endpoint too.
			err = context.Canceled
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func serveTCP(ctx context.Context, cmd *cobra.Command, server *mcpserver.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-server.Ready():
		fmt.Fprintf(cmd.OutOrStdout(), "PORT=%d\nTOKEN=%s\n", server.Port(), server.Token())
	case err := <-errCh:
		return err
	}

	if err := <-errCh; err != nil {
		return err
	}
	return ctx.Err()
}
