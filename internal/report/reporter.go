package report

import (
	"io"
	"os"

	"github.com/benaskins/ptimeout/internal/request"
	"golang.org/x/term"
)

// Options selects and configures a Reporter.
type Options struct {
	Stdout      io.Writer
	Stderr      io.Writer
	Interactive bool
	Verbose     bool
	Direction   request.CountDirection
	Level       int
}

// New returns the interactive reporter when Interactive is set and the plain
// pass-through reporter otherwise. The choice is made once per run.
func New(opts Options) Reporter {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Interactive {
		return NewInteractive(opts)
	}
	return NewPlain(opts.Stdout, opts.Stderr, opts.Verbose)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
