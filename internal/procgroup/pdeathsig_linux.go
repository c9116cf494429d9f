//go:build linux

package procgroup

import (
	"os/exec"
	"syscall"
)

// The signal fires when the spawning OS thread exits, which for Go means the
// process exits: nothing here locks the starting goroutine to its thread.
func setParentDeathSignal(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
