// Package exitcode defines the process exit codes ptimeout reports, following
// the GNU timeout conventions.
package exitcode

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

const (
	Success      = 0
	Timeout      = 124 // command timed out after exhausting retries
	Internal     = 125 // ptimeout itself failed, including a zero deadline
	NotInvokable = 126 // command found but could not be invoked
	NotFound     = 127 // command could not be found
	Interrupted  = 130 // 128+SIGINT
	Killed       = 137 // 128+SIGKILL
)

// FromSignal returns the conventional 128+N code for a terminating signal.
func FromSignal(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return Internal
}

// FromState maps a reaped process state to an exit code. A child terminated
// by a signal it did not handle reports 128+N rather than Go's -1.
func FromState(state *os.ProcessState) int {
	if state == nil {
		return Internal
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return FromSignal(ws.Signal())
	}
	return state.ExitCode()
}

// Error carries an exit code out of a command so main can hand it to os.Exit.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode wraps err so that Code reports code for it.
func WithCode(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// SignalError records that a run was cancelled by a terminating signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal: %s", e.Signal)
}

// Code returns 128+N for the signal.
func (e *SignalError) Code() int { return FromSignal(e.Signal) }

// Code extracts the exit code from err. nil is Success and any error that
// does not carry a code is Internal.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var sig *SignalError
	if errors.As(err, &sig) {
		return sig.Code()
	}
	return Internal
}
