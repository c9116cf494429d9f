// Package retry bounds repeated attempts of a command and decides the one
// exit code a run ends with.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/journal"
	"github.com/benaskins/ptimeout/internal/nested"
	"github.com/benaskins/ptimeout/internal/report"
	"github.com/benaskins/ptimeout/internal/request"
	"github.com/benaskins/ptimeout/internal/supervisor"
)

// DefaultBackoff is the pause between a failed attempt and the next one.
const DefaultBackoff = time.Second

// ErrTooDeep rejects a nested invocation beyond nested.MaxDepth.
var ErrTooDeep = errors.New("nested invocation too deep")

// Runner executes a single attempt.
type Runner interface {
	Run(ctx context.Context, a supervisor.Attempt) supervisor.Result
}

// Recorder receives one entry per finished attempt.
type Recorder interface {
	Record(journal.Entry) error
}

// Config configures a Controller. Zero values select defaults.
type Config struct {
	Runner     Runner
	Reporter   report.Reporter
	Journal    Recorder
	Logger     *slog.Logger
	Backoff    time.Duration
	SelfNames  []string // argv[0] names that mark a nested invocation
	Executable string   // binary that runs a nested instance
	RunID      string
}

// Outcome is the single result of a run.
type Outcome struct {
	Code     int
	Message  string
	Attempts int
	Last     supervisor.Result
}

// Controller drives attempts for one request.
type Controller struct {
	runner     Runner
	reporter   report.Reporter
	journal    Recorder
	logger     *slog.Logger
	backoff    time.Duration
	selfNames  []string
	executable string
	runID      string
}

// New creates a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		runner:     cfg.Runner,
		reporter:   cfg.Reporter,
		journal:    cfg.Journal,
		logger:     cfg.Logger,
		backoff:    cfg.Backoff,
		selfNames:  cfg.SelfNames,
		executable: cfg.Executable,
		runID:      cfg.RunID,
	}
	if c.reporter == nil {
		c.reporter = report.Discard
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "retry")
	if c.runner == nil {
		c.runner = supervisor.New(supervisor.Config{Reporter: c.reporter, Logger: cfg.Logger})
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.selfNames == nil {
		c.selfNames = nested.SelfNames()
	}
	if c.executable == "" {
		if exe, err := os.Executable(); err == nil {
			c.executable = exe
		} else {
			c.executable = nested.ToolName
		}
	}
	return c
}

// Run executes req until it succeeds, fails for good, runs out of retries or
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context, req request.ExecutionRequest) Outcome {
	if err := req.Validate(); err != nil {
		return c.reject(req, err.Error(), err)
	}

	inv, isNested := nested.Detect(req.Command, c.selfNames)
	if isNested {
		if req.NestingLevel+1 > nested.MaxDepth {
			err := fmt.Errorf("%w: level %d exceeds %d", ErrTooDeep, req.NestingLevel+1, nested.MaxDepth)
			return c.reject(req, fmt.Sprintf("Nested ptimeout depth exceeds %d. Command not executed.", nested.MaxDepth), err)
		}
		c.reporter.Report(report.Event{
			Kind:    report.Nested,
			Level:   req.NestingLevel,
			Command: inv.Argv(),
		})
		req.Command = inv.Rewrite(c.executable, req.NestingLevel+1, nested.Carry{
			Verbose:   req.Verbose,
			Direction: req.CountDirection,
		})
		req.NestingLevel++
		c.logger.Debug("nested invocation", "level", req.NestingLevel, "command", req.Command)
	}

	return c.attempts(ctx, req, isNested)
}

func (c *Controller) attempts(ctx context.Context, req request.ExecutionRequest, isNested bool) Outcome {
	var (
		last  supervisor.Result
		index int
	)

	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(context.Cause(ctx))
		}
		last = c.runner.Run(ctx, supervisor.Attempt{
			Index:      index,
			MaxRetries: req.MaxRetries,
			Level:      req.NestingLevel,
			Nested:     isNested,
			Command:    req.Command,
			Deadline:   req.Deadline,
			Stdin:      req.StdinPayload,
			StdoutPath: req.StdoutPath,
			StderrPath: req.StderrPath,
		})
		c.record(req, index, last)
		index++

		if last.Outcome == supervisor.Exited && last.Code == exitcode.Success {
			return nil
		}
		err := attemptError(last)
		if !last.Retryable() || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying", "attempt", index, "max_retries", req.MaxRetries, "wait", wait, "error", err)
		c.reporter.Report(report.Event{
			Kind:       report.Retrying,
			Level:      req.NestingLevel,
			Attempt:    index,
			MaxRetries: req.MaxRetries,
			Command:    req.Command,
			Err:        err,
		})
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(c.backoff)
	b = backoff.WithMaxRetries(b, uint64(req.MaxRetries))
	b = backoff.WithContext(b, ctx)

	err := backoff.RetryNotify(op, b, notify)

	// A cancellation that lands between attempts leaves last describing an
	// earlier attempt; the run still ends as interrupted.
	if ctx.Err() != nil && last.Outcome != supervisor.Interrupted {
		last = c.interrupted(ctx, req, index)
	}

	out := Outcome{Code: last.Code, Message: message(last), Attempts: index, Last: last}
	if err != nil {
		c.logger.Debug("run failed", "attempts", index, "code", out.Code, "error", err)
	} else {
		c.logger.Debug("run succeeded", "attempts", index)
	}
	return out
}

func (c *Controller) interrupted(ctx context.Context, req request.ExecutionRequest, index int) supervisor.Result {
	res := supervisor.Result{
		Outcome: supervisor.Interrupted,
		Code:    exitcode.Interrupted,
		Err:     context.Cause(ctx),
	}
	var sig *exitcode.SignalError
	if errors.As(res.Err, &sig) {
		res.Signal = sig.Signal
		res.Code = sig.Code()
	}
	c.reporter.Report(report.Event{
		Kind:    report.Interrupted,
		Level:   req.NestingLevel,
		Attempt: index,
		Command: req.Command,
		Code:    res.Code,
		Signal:  res.Signal,
		Err:     res.Err,
	})
	return res
}

func (c *Controller) reject(req request.ExecutionRequest, text string, err error) Outcome {
	c.reporter.Report(report.Event{
		Kind:    report.Rejected,
		Level:   req.NestingLevel,
		Command: req.Command,
		Code:    exitcode.Internal,
		Text:    text,
		Err:     err,
	})
	last := supervisor.Result{Outcome: supervisor.Rejected, Code: exitcode.Internal, Err: err}
	c.record(req, 0, last)
	return Outcome{Code: exitcode.Internal, Message: text, Last: last}
}

func (c *Controller) record(req request.ExecutionRequest, index int, res supervisor.Result) {
	if c.journal == nil {
		return
	}
	entry := journal.Entry{
		RunID:      c.runID,
		Level:      req.NestingLevel,
		Attempt:    index,
		Command:    req.Command,
		Outcome:    string(res.Outcome),
		ExitCode:   res.Code,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Outcome == supervisor.LaunchFailed {
		entry.Launch = res.Launch.String()
	}
	if res.Signal != nil {
		entry.Signal = res.Signal.String()
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := c.journal.Record(entry); err != nil {
		c.logger.Warn("journal write failed", "error", err)
	}
}

func attemptError(res supervisor.Result) error {
	switch res.Outcome {
	case supervisor.Exited:
		return fmt.Errorf("command exited with code %d", res.Code)
	case supervisor.TimedOut:
		return fmt.Errorf("command timed out after %s", res.Duration.Round(time.Millisecond))
	}
	if res.Err != nil {
		return fmt.Errorf("%s: %w", res.Outcome, res.Err)
	}
	return fmt.Errorf("%s (code %d)", res.Outcome, res.Code)
}

func message(res supervisor.Result) string {
	switch res.Outcome {
	case supervisor.Exited:
		if res.Code == exitcode.Success {
			return "Command finished successfully."
		}
		return fmt.Sprintf("Command failed with exit code %d.", res.Code)
	case supervisor.TimedOut:
		return "Command timed out."
	case supervisor.LaunchFailed:
		return fmt.Sprintf("Command could not be launched (%s).", res.Launch)
	case supervisor.Interrupted:
		if res.Signal != nil {
			return fmt.Sprintf("Interrupted by %s.", res.Signal)
		}
		return "Interrupted."
	case supervisor.Rejected:
		return "Command not executed."
	}
	if res.Err != nil {
		return fmt.Sprintf("An error occurred: %v", res.Err)
	}
	return string(res.Outcome)
}
