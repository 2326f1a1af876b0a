package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"feedbackloop/pkg/logx"
)

// DefaultMaxRawLength bounds the text returned by the raw fallback, in runes.
const DefaultMaxRawLength = 10000

// TruncationMarker is appended when raw output is cut to the length bound.
const TruncationMarker = "\n…[truncated]"

const fence = "```"

// feedbackKeyRegex matches a feedback key (quoted or bare) and the colon after it.
var feedbackKeyRegex = regexp.MustCompile(`(?:"feedback"|\bfeedback)\s*:\s*`)

// rawUnescaper undoes the escapes a JSON encoder leaves in half-written payloads.
var rawUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\"`, `"`,
)

// Decoder turns captured UI stdout into a Result using a chain of strategies of
// decreasing confidence. It never fails: every input yields exactly one Result.
type Decoder struct {
	// MaxRawLength bounds the raw fallback, in runes.
	MaxRawLength int
}

// NewDecoder creates a decoder; a non-positive bound selects DefaultMaxRawLength.
func NewDecoder(maxRawLength int) *Decoder {
	if maxRawLength <= 0 {
		maxRawLength = DefaultMaxRawLength
	}
	return &Decoder{MaxRawLength: maxRawLength}
}

// Decode applies, in order: empty check, whole-blob parse, boundary-scan
// segmentation, feedback field extraction, fenced-block extraction and raw
// fallback, stopping at the first that succeeds.
func (d *Decoder) Decode(ctx context.Context, raw []byte, projectDir string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logx.Debug(ctx, "decoder", "recovered from panic: %v", r)
			result = NewDegraded(d.rawFallback(string(raw)), projectDir, StrategyRaw)
		}
	}()

	text := strings.TrimSpace(string(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	if text == "" {
		return NewCancelled(projectDir, StrategyEmpty)
	}

	if res, ok := interpret(text, projectDir, StrategyWhole); ok {
		return res
	}

	candidates := SplitObjects(text)
	logx.Debug(ctx, "decoder", "whole-blob parse failed, %d candidate object(s)", len(candidates))
	for i, candidate := range candidates {
		if res, ok := interpret(candidate, projectDir, StrategySegment); ok {
			logx.Debug(ctx, "decoder", "candidate %d accepted", i)
			return res
		}
	}

	if recovered, ok := extractFeedbackField(text); ok {
		return NewDegraded(recovered, projectDir, StrategyField)
	}

	if recovered, ok := extractFenced(text); ok {
		return NewDegraded(recovered, projectDir, StrategyFence)
	}

	return NewDegraded(d.rawFallback(text), projectDir, StrategyRaw)
}

// interpret parses one JSON object and maps it to Feedback or Cancelled. It
// reports false when the text is not an object, or the object carries neither a
// string feedback field nor a true cancelled flag. A null feedback is not a string.
func interpret(text, projectDir string, strategy Strategy) (Result, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return Result{}, false
	}

	if dir := stringField(fields, "projectDirectory"); dir != "" {
		projectDir = dir
	}

	if raw, ok := fields["cancelled"]; ok {
		var cancelled bool
		if json.Unmarshal(raw, &cancelled) == nil && cancelled {
			return NewCancelled(projectDir, strategy), true
		}
	}

	raw, ok := fields["feedback"]
	if !ok {
		return Result{}, false
	}
	feedback, ok := decodeString(raw)
	if !ok {
		return Result{}, false
	}
	return NewFeedback(feedback, projectDir, strategy), true
}

// decodeString reports whether raw is a JSON string. Null is not a string.
func decodeString(raw json.RawMessage) (string, bool) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", false
	}
	return *s, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := decodeString(raw)
	return s
}

// extractFeedbackField finds the first feedback key whose value yields non-empty
// text. A terminated quoted value is taken whole; anything else runs to the next
// comma or closing brace.
func extractFeedbackField(text string) (string, bool) {
	for _, loc := range feedbackKeyRegex.FindAllStringIndex(text, -1) {
		value := valueAt(text[loc[1]:])
		value = strings.TrimSpace(rawUnescaper.Replace(value))
		if value != "" {
			return value, true
		}
	}
	return "", false
}

func valueAt(rest string) string {
	if strings.HasPrefix(rest, `"`) {
		if end := closingQuote(rest); end > 0 {
			return rest[1:end]
		}
	}
	if end := strings.IndexAny(rest, ",}"); end >= 0 {
		rest = rest[:end]
	}
	return stripQuotes(strings.TrimSpace(rest))
}

// closingQuote returns the index of the unescaped quote closing the string that
// opens at s[0], or -1.
func closingQuote(s string) int {
	escaped := false
	for i := 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return i
		}
	}
	return -1
}

// stripQuotes removes one layer of surrounding quotes, including a lone leading
// quote left by an unterminated string.
func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// extractFenced returns the span between the first and last code fence, without
// a leading language tag line.
func extractFenced(text string) (string, bool) {
	first := strings.Index(text, fence)
	last := strings.LastIndex(text, fence)
	if first < 0 || last <= first {
		return "", false
	}
	inner := text[first+len(fence) : last]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		if tag := inner[:nl]; tag != "" && !strings.ContainsAny(tag, " \t{") {
			inner = inner[nl+1:]
		}
	}
	inner = strings.TrimSpace(inner)
	return inner, inner != ""
}

// rawFallback truncates to the length bound, then unescapes.
func (d *Decoder) rawFallback(text string) string {
	limit := d.MaxRawLength
	if limit <= 0 {
		limit = DefaultMaxRawLength
	}
	truncated := false
	if utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
		truncated = true
	}
	text = rawUnescaper.Replace(text)
	if truncated {
		text += TruncationMarker
	}
	return text
}
