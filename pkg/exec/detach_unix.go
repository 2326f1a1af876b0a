//go:build !windows

package exec

import (
	"os/exec"
	"syscall"
)

// detach starts the child in its own process group. Cancellation kills the
// whole group so helper processes holding the output pipes go with it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
