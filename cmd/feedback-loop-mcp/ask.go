package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedbackloop/pkg/feedback"
)

// errFeedbackFailed signals an error envelope; the envelope itself is already printed.
var errFeedbackFailed = errors.New("feedback request failed")

type askOptions struct {
	projectDirectory string
	prompt           string
	options          []string
	compact          bool
	showMetrics      bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Run one feedback request without an MCP client and print the envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if opts.projectDirectory == "" {
				if opts.projectDirectory, err = os.Getwd(); err != nil {
					return fmt.Errorf("resolve project directory: %w", err)
				}
			}

			args := map[string]any{
				feedback.ArgProjectDirectory: opts.projectDirectory,
				feedback.ArgPrompt:           opts.prompt,
			}
			if len(opts.options) > 0 {
				options := make([]any, 0, len(opts.options))
				for _, o := range opts.options {
					options = append(options, o)
				}
				args[feedback.ArgQuickFeedbackOptions] = options
			}

			env := a.handler.Invoke(cmd.Context(), args)
			if err := writeJSON(cmd.OutOrStdout(), env, opts.compact); err != nil {
				return err
			}

			if opts.showMetrics {
				if err := a.recorder.WriteText(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			if env.Status == feedback.StatusError {
				return errFeedbackFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.projectDirectory, "project-directory", "", "Project directory passed to the UI (default: current directory)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt shown to the user")
	cmd.Flags().StringArrayVar(&opts.options, "option", nil, "Quick feedback option (repeatable)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "Print compact JSON even on a terminal")
	cmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "Print collected metrics to stderr afterwards")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
