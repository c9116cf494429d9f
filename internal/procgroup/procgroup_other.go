//go:build !unix

package procgroup

import (
	"os/exec"
	"syscall"
)

func setGroupAttr(*exec.Cmd) {}

// Without process groups only the direct child can be reached.
func signalGroup(cmd *exec.Cmd, _ int, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return cmd.Process.Signal(sig)
}
