package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// helperCommand re-executes the test binary as a scripted child process.
func helperCommand(mode string, args ...string) ([]string, []string) {
	cmd := append([]string{os.Args[0], "-test.run=TestHelperProcess", "--", mode}, args...)
	env := []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd, env
}

// TestHelperProcess is not a real test; it is the child process body.
func TestHelperProcess(t *testing.T) {
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
	switch args[1] {
	case "echo":
		fmt.Fprint(os.Stdout, strings.Join(args[2:], " "))
		fmt.Fprint(os.Stderr, "diagnostic line")
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stdout, "partial")
		os.Exit(3)
	case "big":
		chunk := strings.Repeat("x", 1024)
		for i := 0; i < 256; i++ {
			fmt.Fprint(os.Stdout, chunk)
			fmt.Fprint(os.Stderr, chunk)
		}
		os.Exit(0)
	case "pwd":
		wd, _ := os.Getwd()
		fmt.Fprint(os.Stdout, wd)
		os.Exit(0)
	}
	os.Exit(2)
}

func TestLocalExec_Name(t *testing.T) {
	exec := NewLocalExec()
	if exec.Name() != ExecutorTypeLocal {
		t.Errorf("Expected name 'local', got %s", exec.Name())
	}
	if !exec.Available() {
		t.Error("LocalExec should always be available")
	}
}

func TestLocalExec_Run_Success(t *testing.T) {
	cmd, env := helperCommand("echo", "hello", "world")
	opts := DefaultExecOpts()
	opts.Env = env

	result, err := NewLocalExec().Run(context.Background(), cmd, &opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if string(result.Stdout) != "hello world" {
		t.Errorf("Expected stdout 'hello world', got %q", result.Stdout)
	}
	if result.Stderr != "diagnostic line" {
		t.Errorf("Expected stderr captured separately, got %q", result.Stderr)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestLocalExec_Run_NonZeroExitIsNotError(t *testing.T) {
	cmd, env := helperCommand("fail")
	opts := DefaultExecOpts()
	opts.Env = env

	result, err := NewLocalExec().Run(context.Background(), cmd, &opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
	if string(result.Stdout) != "partial" {
		t.Errorf("Expected partial stdout, got %q", result.Stdout)
	}
}

func TestLocalExec_Run_LargeOutputOnBothStreams(t *testing.T) {
	cmd, env := helperCommand("big")
	opts := DefaultExecOpts()
	opts.Env = env

	result, err := NewLocalExec().Run(context.Background(), cmd, &opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Stdout) != 256*1024 {
		t.Errorf("Expected 256KiB stdout, got %d bytes", len(result.Stdout))
	}
	if len(result.Stderr) != 256*1024 {
		t.Errorf("Expected 256KiB stderr, got %d bytes", len(result.Stderr))
	}
}

func TestLocalExec_Run_WorkDir(t *testing.T) {
	dir := t.TempDir()
	cmd, env := helperCommand("pwd")
	opts := DefaultExecOpts()
	opts.Env = env
	opts.WorkDir = dir

	result, err := NewLocalExec().Run(context.Background(), cmd, &opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got, _ := filepath.EvalSymlinks(string(result.Stdout))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("Expected working dir %s, got %s", want, got)
	}
}

func TestLocalExec_Run_MissingExecutable(t *testing.T) {
	_, err := NewLocalExec().Run(context.Background(), []string{"definitely-not-a-real-binary-4711"}, nil)
	if err == nil {
		t.Fatal("Expected error for missing executable")
	}
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Expected *StartError, got %T: %v", err, err)
	}
	if startErr.Command != "definitely-not-a-real-binary-4711" {
		t.Errorf("Unexpected command in error: %s", startErr.Command)
	}
}

func TestLocalExec_Run_MissingWorkDir(t *testing.T) {
	cmd, env := helperCommand("pwd")
	opts := DefaultExecOpts()
	opts.Env = env
	opts.WorkDir = filepath.Join(t.TempDir(), "gone")

	_, err := NewLocalExec().Run(context.Background(), cmd, &opts)
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Expected *StartError, got %v", err)
	}
}

func TestLocalExec_Run_EmptyCommand(t *testing.T) {
	_, err := NewLocalExec().Run(context.Background(), []string{}, nil)
	if err == nil {
		t.Error("Expected error for empty command")
	}
}
