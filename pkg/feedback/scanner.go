package feedback

// SplitObjects splits text into top-level brace-delimited candidates, in order.
//
// The scanner keeps a depth counter that starts at 0 and is never allowed to go
// negative: a '}' seen at depth 0 is stray and skipped. A candidate is emitted each
// time depth returns to 0, so every emitted candidate is balanced. Braces inside
// double-quoted strings (with backslash escapes) do not affect depth. Text outside
// any object, and a trailing unbalanced object, are discarded.
func SplitObjects(text string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escaped    bool
	)

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// Quotes only matter inside an object; noise between payloads may
			// contain unmatched quotes.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidates = append(candidates, text[start:i+1])
				start = -1
			}
		}
	}

	return candidates
}
