// Package supervisor runs one attempt of a command under a wall-clock
// deadline and classifies how it ended.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/procgroup"
	"github.com/benaskins/ptimeout/internal/relay"
	"github.com/benaskins/ptimeout/internal/report"
)

const (
	// DefaultTick is the poll interval of the supervision loop.
	DefaultTick = 50 * time.Millisecond
	// InterruptGrace is how long a cancelled child gets between SIGTERM and SIGKILL.
	InterruptGrace = 100 * time.Millisecond
	// NestedGrace is how long an inner ptimeout gets to tear down its own
	// process group after SIGTERM before it is killed.
	NestedGrace = time.Second
)

// ErrZeroDeadline rejects an attempt whose deadline leaves no time to run.
var ErrZeroDeadline = errors.New("zero deadline: command not executed")

// Outcome classifies how an attempt ended.
type Outcome string

const (
	Exited       Outcome = "exited"
	TimedOut     Outcome = "timed_out"
	LaunchFailed Outcome = "launch_failed"
	Interrupted  Outcome = "interrupted"
	Rejected     Outcome = "rejected"
	Faulted      Outcome = "fault"
)

// Attempt describes one execution of the command.
type Attempt struct {
	Index      int
	MaxRetries int
	Level      int
	Nested     bool // Command runs an inner ptimeout instance
	Command    []string
	Deadline   time.Duration
	Stdin      []byte
	StdoutPath string
	StderrPath string
}

// Result is the classified end of an attempt. Code is the exit code the
// outcome maps to.
type Result struct {
	Outcome   Outcome
	Code      int
	Launch    exitcode.LaunchKind
	Signal    os.Signal
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Retryable reports whether another attempt could change the result.
func (r Result) Retryable() bool {
	switch r.Outcome {
	case TimedOut:
		return true
	case Exited:
		return r.Code != exitcode.Success
	}
	return false
}

// Tracker is told about the live process handle of an attempt so that
// asynchronous cancellation can reach it.
type Tracker interface {
	Track(*procgroup.Handle)
	Untrack(*procgroup.Handle)
}

// Config configures a Supervisor. Zero values select defaults.
type Config struct {
	Reporter    report.Reporter
	Tracker     Tracker
	Logger      *slog.Logger
	Tick        time.Duration
	JoinTimeout time.Duration

	// DieWithParent binds each child's life to this process, for an inner
	// instance whose outer instance may kill it outright.
	DieWithParent bool
}

// Supervisor runs attempts one at a time.
type Supervisor struct {
	reporter    report.Reporter
	tracker     Tracker
	logger      *slog.Logger
	tick        time.Duration
	joinTimeout time.Duration
	spawn       procgroup.Options
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	s := &Supervisor{
		reporter:    cfg.Reporter,
		tracker:     cfg.Tracker,
		logger:      cfg.Logger,
		tick:        cfg.Tick,
		joinTimeout: cfg.JoinTimeout,
		spawn:       procgroup.Options{DieWithParent: cfg.DieWithParent},
	}
	if s.reporter == nil {
		s.reporter = report.Discard
	}
	if s.tracker == nil {
		s.tracker = noopTracker{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "supervisor")
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	return s
}

// Run executes one attempt. It never returns while the child it spawned is
// still alive, and it releases every stream endpoint before returning.
func (s *Supervisor) Run(ctx context.Context, a Attempt) (res Result) {
	emit := func(e report.Event) {
		e.Level = a.Level
		e.Attempt = a.Index
		if e.Command == nil {
			e.Command = a.Command
		}
		e.Deadline = a.Deadline
		s.reporter.Report(e)
	}

	if a.Deadline <= 0 {
		emit(report.Event{Kind: report.Rejected, Code: exitcode.Internal, Err: ErrZeroDeadline,
			Text: "Timeout of 0s reached. Command not executed."})
		return Result{Outcome: Rejected, Code: exitcode.Internal, Err: ErrZeroDeadline}
	}
	if len(a.Command) == 0 {
		err := errors.New("empty command")
		emit(report.Event{Kind: report.Rejected, Code: exitcode.Internal, Err: err, Text: "No command to execute."})
		return Result{Outcome: Rejected, Code: exitcode.Internal, Err: err}
	}

	emit(report.Event{
		Kind:        report.AttemptStarted,
		MaxRetries:  a.MaxRetries,
		PayloadSize: len(a.Stdin),
	})

	cmd := exec.Command(a.Command[0], a.Command[1:]...)
	rl, err := relay.Open(cmd, relay.Config{
		StdoutPath:  a.StdoutPath,
		StderrPath:  a.StderrPath,
		Stdin:       a.Stdin,
		JoinTimeout: s.joinTimeout,
	})
	if err != nil {
		emit(report.Event{Kind: report.Fault, Code: exitcode.Internal, Err: err})
		return Result{Outcome: Faulted, Code: exitcode.Internal, Err: err}
	}

	h, err := procgroup.StartWith(cmd, s.spawn)
	if err != nil {
		rl.Abort()
		kind := exitcode.ClassifyLaunch(err)
		s.logger.Debug("launch failed", "command", a.Command[0], "kind", kind, "error", err)
		emit(report.Event{Kind: report.LaunchFailed, Code: kind.Code(), Launch: kind, Err: err})
		return Result{Outcome: LaunchFailed, Code: kind.Code(), Launch: kind, Err: err}
	}

	s.tracker.Track(h)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("supervising pid %d: %v", h.Pid(), r)
			s.logger.Error("attempt fault", "error", err)
			h.Kill()
			h.Wait(0)
			rl.Close()
			emit(report.Event{Kind: report.Fault, Code: exitcode.Internal, Err: err})
			res = Result{Outcome: Faulted, Code: exitcode.Internal, Err: err,
				StartedAt: h.StartedAt(), Duration: time.Since(h.StartedAt())}
		}
		s.tracker.Untrack(h)
	}()

	rl.Started()
	s.logger.Debug("attempt started", "pid", h.Pid(), "attempt", a.Index, "deadline", a.Deadline)

	res = s.supervise(ctx, a, h, rl, emit)

	// Classification is final; only now wait for the readers and pick up any
	// output written just before exit.
	if err := rl.Close(); err != nil {
		s.logger.Warn("stream relay", "error", err)
	}
	rl.Drain(func(l relay.Line) { emit(outputEvent(l)) })

	s.logger.Debug("attempt finished", "pid", h.Pid(), "outcome", res.Outcome, "code", res.Code, "duration", res.Duration)
	switch res.Outcome {
	case Exited:
		emit(report.Event{Kind: report.Completed, Code: res.Code, Elapsed: res.Duration})
	case TimedOut:
		emit(report.Event{Kind: report.TimedOut, Code: res.Code, Elapsed: res.Duration})
	case Interrupted:
		emit(report.Event{Kind: report.Interrupted, Code: res.Code, Signal: res.Signal, Err: res.Err})
	}
	return res
}

// supervise is the poll loop. Each tick checks liveness before the clock, so
// a child is only classified as exited if it was seen dead before the
// deadline check; otherwise the timeout wins.
func (s *Supervisor) supervise(ctx context.Context, a Attempt, h *procgroup.Handle, rl *relay.Relay, emit func(report.Event)) Result {
	start := h.StartedAt()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	deadline := time.NewTimer(a.Deadline)
	defer deadline.Stop()

	for {
		if !h.Alive() {
			if err := ctx.Err(); err != nil {
				return interrupted(ctx, start)
			}
			return Result{
				Outcome:   Exited,
				Code:      exitcode.FromState(h.State()),
				StartedAt: start,
				Duration:  time.Since(start),
			}
		}

		if ctx.Err() != nil {
			s.logger.Debug("attempt cancelled, stopping process group", "pid", h.Pid())
			grace := InterruptGrace
			if a.Nested {
				grace = NestedGrace
			}
			if err := h.Stop(grace); err != nil {
				s.logger.Warn("stopping process group", "pid", h.Pid(), "error", err)
				h.Wait(0)
			}
			return interrupted(ctx, start)
		}

		elapsed := time.Since(start)
		if elapsed >= a.Deadline {
			s.logger.Debug("deadline reached, killing process group", "pid", h.Pid(), "elapsed", elapsed, "nested", a.Nested)
			if err := expire(a, h); err != nil {
				s.logger.Warn("killing process group", "pid", h.Pid(), "error", err)
			}
			h.Wait(0)
			return Result{
				Outcome:   TimedOut,
				Code:      exitcode.Timeout,
				StartedAt: start,
				Duration:  time.Since(start),
			}
		}

		rl.Drain(func(l relay.Line) { emit(outputEvent(l)) })
		emit(report.Event{Kind: report.Progress, Elapsed: elapsed})

		select {
		case <-ticker.C:
		case <-deadline.C:
		case <-h.Done():
		case <-ctx.Done():
		}
	}
}

// expire ends an attempt that ran out of time. An inner ptimeout leads its own
// child's group, out of reach of ours, so it is asked to stop first and only
// killed once the grace runs out.
func expire(a Attempt, h *procgroup.Handle) error {
	if a.Nested {
		return h.Stop(NestedGrace)
	}
	return h.Kill()
}

func interrupted(ctx context.Context, start time.Time) Result {
	res := Result{
		Outcome:   Interrupted,
		Code:      exitcode.Interrupted,
		Err:       context.Cause(ctx),
		StartedAt: start,
		Duration:  time.Since(start),
	}
	var sig *exitcode.SignalError
	if errors.As(res.Err, &sig) {
		res.Signal = sig.Signal
		res.Code = sig.Code()
	}
	return res
}

func outputEvent(l relay.Line) report.Event {
	return report.Event{Kind: report.OutputLine, Stream: l.Stream, Text: l.Text}
}

type noopTracker struct{}

func (noopTracker) Track(*procgroup.Handle)   {}
func (noopTracker) Untrack(*procgroup.Handle) {}
