package main

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 100

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w, or defaultWidth.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// writeJSON writes v indented for terminals and compact otherwise.
func writeJSON(w io.Writer, v any, forceCompact bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !forceCompact && isTerminal(w) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
