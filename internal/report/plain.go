package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benaskins/ptimeout/internal/relay"
	"golang.org/x/time/rate"
)

// Plain passes child output straight through to the invoking process's own
// stdout and stderr and writes status lines to stderr.
type Plain struct {
	stdout  io.Writer
	stderr  io.Writer
	verbose bool

	mu        sync.Mutex
	countdown rate.Sometimes
}

// NewPlain returns a Plain reporter. Verbose adds the header, nesting and
// a once-per-second countdown.
func NewPlain(stdout, stderr io.Writer, verbose bool) *Plain {
	return &Plain{
		stdout:    stdout,
		stderr:    stderr,
		verbose:   verbose,
		countdown: rate.Sometimes{Interval: time.Second},
	}
}

func (p *Plain) Report(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case OutputLine:
		if e.Stream == relay.Stderr {
			io.WriteString(p.stderr, e.Text)
		} else {
			io.WriteString(p.stdout, e.Text)
		}
		return
	case Progress:
		if p.verbose {
			p.countdown.Do(func() { fmt.Fprintln(p.stderr, countdownLine(e)) })
		}
		return
	}

	if p.verbose {
		for _, line := range verboseLines(e) {
			fmt.Fprintln(p.stderr, line)
		}
	}
	if line := statusLine(e, p.verbose); line != "" {
		fmt.Fprintln(p.stderr, line)
	}
}

func (p *Plain) Close() error { return nil }
