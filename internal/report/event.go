// Package report renders the execution engine's event stream for a human.
package report

import (
	"os"
	"time"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/relay"
)

// Kind identifies an event in the stream produced by a run.
type Kind int

const (
	AttemptStarted Kind = iota
	OutputLine
	Progress
	Retrying
	TimedOut
	Completed
	LaunchFailed
	Interrupted
	Rejected
	Fault
	Nested
)

var kindNames = map[Kind]string{
	AttemptStarted: "attempt_started",
	OutputLine:     "output_line",
	Progress:       "progress",
	Retrying:       "retrying",
	TimedOut:       "timed_out",
	Completed:      "completed",
	LaunchFailed:   "launch_failed",
	Interrupted:    "interrupted",
	Rejected:       "rejected",
	Fault:          "fault",
	Nested:         "nested",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether an event of this kind ends an attempt.
func (k Kind) Terminal() bool {
	switch k {
	case TimedOut, Completed, LaunchFailed, Interrupted, Rejected, Fault:
		return true
	}
	return false
}

// Event is one item of the ordered stream emitted while a request runs.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind    Kind
	Level   int // nesting level of the emitting instance
	Attempt int // zero-based attempt index

	MaxRetries  int
	Command     []string
	Deadline    time.Duration
	Elapsed     time.Duration
	PayloadSize int

	Stream relay.Stream
	Text   string

	Code   int
	Launch exitcode.LaunchKind
	Signal os.Signal
	Err    error
}

// Reporter consumes the event stream. Report is called from the supervising
// goroutine only; Close flushes anything still pending.
type Reporter interface {
	Report(Event)
	Close() error
}

// Discard is a Reporter that drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Event) {}
func (discard) Close() error { return nil }
