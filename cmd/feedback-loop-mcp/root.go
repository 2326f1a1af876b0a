package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedbackloop/pkg/config"
	"feedbackloop/pkg/logx"
	"feedbackloop/pkg/tools"
	"feedbackloop/pkg/version"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "feedback-loop-mcp",
		Short:         "MCP server that collects interactive human feedback",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $FEEDBACK_LOOP_CONFIG or ~/.feedback-loop/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging for all domains")

	root.AddCommand(
		newServeCmd(opts),
		newProxyCmd(),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newToolsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and applies its debug settings.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	switch {
	case o.debug:
		logx.SetDebug(true, nil)
	case cfg.Debug.Enabled:
		logx.SetDebug(true, cfg.Debug.Domains)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "feedback-loop-mcp", version.String())
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var registered bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Describe the tools exposed to MCP clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if registered {
				for _, meta := range tools.ListTools() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", meta.Name, meta.Description)
				}
				return nil
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.History.Enabled = false
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			fmt.Fprint(cmd.OutOrStdout(), a.provider.GenerateToolDocumentation())
			return nil
		},
	}
	cmd.Flags().BoolVar(&registered, "registered", false, "List every registered tool under its registered name")
	return cmd
}
