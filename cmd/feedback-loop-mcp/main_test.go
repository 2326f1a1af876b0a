package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbackloop/pkg/config"
	"feedbackloop/pkg/feedback"
	"feedbackloop/pkg/persistence"
)

// TestHelperUIProcess is not a real test; it is the fake UI body.
func TestHelperUIProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	prompt := ""
	for i := 2; i+1 < len(args); i++ {
		if args[i] == feedback.FlagPrompt {
			prompt = args[i+1]
		}
	}
	switch args[1] {
	case "submit":
		fmt.Fprintf(os.Stdout, `{"feedback":"answer to %s","timestamp":"2025-01-01T00:00:00Z"}`, prompt)
	case "close":
	}
	os.Exit(0)
}

// setupCLI writes a config whose UI is this test binary and isolates the environment.
func setupCLI(t *testing.T, mode string) (configPath, historyPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{config.EnvConfigPath, config.EnvUICommand, config.EnvUIDir, config.EnvHistoryPath, config.EnvMetricsAddr} {
		t.Setenv(key, "")
	}

	historyPath = filepath.Join(dir, "history.db")
	command, err := json.Marshal([]string{os.Args[0], "-test.run=TestHelperUIProcess", "--", mode})
	require.NoError(t, err)

	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`server:
  tool_name: request_feedback
ui:
  command: %s
  env: [GO_WANT_HELPER_PROCESS=1]
history:
  enabled: true
  path: %s
`, command, historyPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, historyPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "feedback-loop-mcp "))
}

func TestAskCommand_RecordsHistory(t *testing.T) {
	configPath, historyPath := setupCLI(t, "submit")

	out, err := runCLI(t, "--config", configPath, "ask", "--project-directory", "/proj", "--prompt", "Review this", "--option", "Yes")
	require.NoError(t, err)

	var env feedback.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, feedback.Envelope{Status: feedback.StatusSuccess, Feedback: "answer to Review this", ProjectDirectory: "/proj"}, env)

	store, err := persistence.Open(context.Background(), historyPath)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	entries, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, feedback.OutcomeFeedback, entries[0].Outcome)
	assert.Equal(t, "Review this", entries[0].Prompt)
}

func TestAskCommand_CancelledAndMissingUI(t *testing.T) {
	configPath, _ := setupCLI(t, "close")
	out, err := runCLI(t, "--config", configPath, "ask", "--prompt", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"cancelled"}`, out)

	t.Setenv(config.EnvUICommand, "/nonexistent/feedback-loop-ui")
	out, err = runCLI(t, "--config", configPath, "ask", "--prompt", "x")
	assert.ErrorIs(t, err, errFeedbackFailed)
	assert.Contains(t, out, "Failed to start")
}

func TestHistoryCommand(t *testing.T) {
	configPath, _ := setupCLI(t, "submit")

	out, err := runCLI(t, "--config", configPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No feedback recorded yet")

	_, err = runCLI(t, "--config", configPath, "ask", "--project-directory", "/proj", "--prompt", "first")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", configPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "answer to first")

	out, err = runCLI(t, "--config", configPath, "history", "--json")
	require.NoError(t, err)
	var entries []persistence.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)

	out, err = runCLI(t, "--config", configPath, "history", entries[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, entries[0].ID)

	out, err = runCLI(t, "--config", configPath, "history", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "feedback")

	_, err = runCLI(t, "--config", configPath, "history", "no-such-id")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestToolsAndConfigCommands(t *testing.T) {
	configPath, _ := setupCLI(t, "submit")

	out, err := runCLI(t, "--config", configPath, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "**request_feedback**")

	out, err = runCLI(t, "--config", configPath, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "tool_name: request_feedback")
	assert.Contains(t, out, "max_raw_length: 10000")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "…", truncate("abcd", 1))
	assert.Equal(t, "héé…", truncate("hééllo", 4))
}

func TestProxyCommand_RequiresToken(t *testing.T) {
	t.Setenv("FEEDBACK_LOOP_TOKEN", "")
	_, err := runCLI(t, "proxy", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEEDBACK_LOOP_TOKEN")
}

func TestToolsCommand_Registered(t *testing.T) {
	out, err := runCLI(t, "tools", "--registered")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "request_feedback\t"), "out=%q", out)
}
