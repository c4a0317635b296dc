//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// isolate places the engine in its own process group so a timeout kills
// the whole tree, including helpers the engine spawned.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
