package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"feedbackloop/pkg/persistence"
)

type historyOptions struct {
	limit   int
	asJSON  bool
	stats   bool
	compact bool
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history [invocation-id]",
		Short: "List recorded feedback invocations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in the configuration")
			}

			store, err := persistence.Open(cmd.Context(), cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			switch {
			case len(args) == 1:
				entry, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("invocation %s: %w", args[0], err)
				}
				return writeJSON(out, entry, opts.compact)
			case opts.stats:
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(out, counts, opts.compact)
				}
				for _, c := range counts {
					fmt.Fprintf(out, "%-18s %d\n", c.Outcome, c.Count)
				}
				return nil
			}

			entries, err := store.ListRecent(cmd.Context(), opts.limit)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(out, entries, opts.compact)
			}
			return writeHistoryTable(out, entries, terminalWidth(out))
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print counts per outcome")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "Print compact JSON even on a terminal")
	return cmd
}

// writeHistoryTable prints one line per entry, fitting the text column to width.
func writeHistoryTable(w io.Writer, entries []persistence.Entry, width int) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No feedback recorded yet")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tPROJECT\tTEXT")

	// Fixed columns take roughly 60 characters.
	textWidth := width - 60
	if textWidth < 20 {
		textWidth = 20
	}
	for _, e := range entries {
		text := e.Feedback
		if text == "" {
			text = e.Message
		}
		if text == "" {
			text = e.Prompt
		}
		text = strings.Join(strings.Fields(text), " ")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.Outcome,
			truncate(e.ProjectDirectory, 24),
			truncate(text, textWidth),
		)
	}
	return tw.Flush()
}
