package exitcode

import (
	"errors"
	"io/fs"
	"os/exec"
	"syscall"
)

// LaunchKind classifies why a command could not be started.
type LaunchKind int

const (
	LaunchNotFound     LaunchKind = iota + 1 // no such file or not on PATH
	LaunchNotInvokable                       // found, but permission or format prevents exec
	LaunchOther                              // any other OS error
)

func (k LaunchKind) String() string {
	switch k {
	case LaunchNotFound:
		return "not_found"
	case LaunchNotInvokable:
		return "not_invokable"
	case LaunchOther:
		return "os_error"
	}
	return "unknown"
}

// Code returns the exit code reported for a launch failure of this kind.
func (k LaunchKind) Code() int {
	if k == LaunchNotFound {
		return NotFound
	}
	return NotInvokable
}

// ClassifyLaunch maps an exec.Cmd.Start error onto a LaunchKind.
func ClassifyLaunch(err error) LaunchKind {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return LaunchNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOEXEC), errors.Is(err, syscall.EISDIR):
		return LaunchNotInvokable
	}
	return LaunchOther
}
