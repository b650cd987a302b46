//go:build unix

package render

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts cmd in its own process group and kills the group
// when the command's context is done.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
