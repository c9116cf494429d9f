// Package procgroup spawns a child into its own process group and signals
// the group as a unit, so that a single kill reaches every descendant.
package procgroup

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Handle owns one spawned child and the process group it leads.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	done    chan struct{}
	state   *os.ProcessState
	waitErr error
}

// Options adjusts how a child is spawned.
type Options struct {
	// DieWithParent asks the kernel to SIGKILL the child if this process dies
	// before reaping it. Only Linux honours it.
	DieWithParent bool
}

// Start launches cmd as the leader of a new process group and begins reaping
// it in the background. The returned Handle is live until Done is closed.
func Start(cmd *exec.Cmd) (*Handle, error) {
	return StartWith(cmd, Options{})
}

// StartWith is Start with spawn options.
func StartWith(cmd *exec.Cmd, opts Options) (*Handle, error) {
	setGroupAttr(cmd)
	if opts.DieWithParent {
		setParentDeathSignal(cmd)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		h.state = cmd.ProcessState
		close(h.done)
	}()
	return h, nil
}

// Pid returns the child's pid, which is also its process group id.
func (h *Handle) Pid() int { return h.pid }

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Alive reports whether the child has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// State returns the reaped process state, or nil while the child is alive.
func (h *Handle) State() *os.ProcessState {
	if h.Alive() {
		return nil
	}
	return h.state
}

// WaitErr returns the error from reaping, or nil while the child is alive.
func (h *Handle) WaitErr() error {
	if h.Alive() {
		return nil
	}
	return h.waitErr
}

// Signal delivers sig to the whole process group. A group whose leader has
// already been reaped is never signalled, and a group that vanished between
// the liveness check and the kill is not an error.
func (h *Handle) Signal(sig syscall.Signal) error {
	if !h.Alive() {
		return nil
	}
	err := signalGroup(h.cmd, h.pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return fmt.Errorf("signalling process group %d with %s: %w", h.pid, sig, err)
}

// Terminate sends SIGTERM to the group.
func (h *Handle) Terminate() error { return h.Signal(syscall.SIGTERM) }

// Kill sends SIGKILL to the group.
func (h *Handle) Kill() error { return h.Signal(syscall.SIGKILL) }

// Wait blocks until the child is reaped or timeout elapses, and reports
// whether it was reaped. A non-positive timeout waits forever.
func (h *Handle) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

// Stop terminates the group, waits up to grace, then force-kills whatever is
// left and waits for the leader to be reaped.
func (h *Handle) Stop(grace time.Duration) error {
	if err := h.Terminate(); err != nil {
		return err
	}
	if h.Wait(grace) {
		return nil
	}
	if err := h.Kill(); err != nil {
		return err
	}
	<-h.done
	return nil
}
