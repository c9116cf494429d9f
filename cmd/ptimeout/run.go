package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/benaskins/ptimeout/internal/config"
	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/journal"
	"github.com/benaskins/ptimeout/internal/logging"
	"github.com/benaskins/ptimeout/internal/nested"
	"github.com/benaskins/ptimeout/internal/report"
	"github.com/benaskins/ptimeout/internal/request"
	"github.com/benaskins/ptimeout/internal/retry"
	"github.com/benaskins/ptimeout/internal/signals"
	"github.com/benaskins/ptimeout/internal/supervisor"
)

const usageLine = "Usage: ptimeout TIMEOUT [OPTIONS] -- COMMAND [ARGS...]"

var runFlags struct {
	verbose        bool
	retries        int
	countDirection string
	dryRun         bool
	configPath     string
	stdoutPath     string
	stderrPath     string
	background     bool
	journalPath    string
	nestingLevel   int
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "Enable verbose output")
	f.IntVarP(&runFlags.retries, "retries", "r", 0, "Max number of times to retry the command upon failure")
	f.StringVarP(&runFlags.countDirection, "count-direction", "d", string(request.CountElapsed), "Count direction: 'up' shows elapsed time, 'down' remaining time")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "Print the command that would be executed without running it")
	f.StringVar(&runFlags.configPath, "config", "", "Config file (default $PTIMEOUT_CONFIG or ~/.config/ptimeout/config.yaml)")
	f.StringVar(&runFlags.stdoutPath, "stdout", "", "Append the command's stdout to this file")
	f.StringVar(&runFlags.stderrPath, "stderr", "", "Append the command's stderr to this file")
	f.BoolVar(&runFlags.background, "background", false, "Plain output only and never read stdin (for cron and systemd)")
	f.StringVar(&runFlags.journalPath, "journal", "", "Append one JSON line per attempt to this file")
	f.IntVar(&runFlags.nestingLevel, "nesting-level", 0, "Nesting level, set by an outer ptimeout")
	f.MarkHidden("nesting-level")
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Path(runFlags.configPath))
	if err != nil {
		return exitcode.WithCode(exitcode.Internal, err)
	}
	defaults, warnings := cfg.Defaults()
	if !cmd.Flags().Changed("log-level") && defaults.LogLevel != "" {
		if level, err := logging.ParseLevel(defaults.LogLevel); err == nil {
			logLevel.Set(level)
		} else {
			warnings = append(warnings, fmt.Errorf("ignoring log_level: %w", err))
		}
	}
	for _, w := range warnings {
		slog.Warn("config", "path", config.Path(runFlags.configPath), "warning", w)
	}

	var payload []byte
	if !runFlags.background && !report.IsTerminal(os.Stdin) {
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return exitcode.WithCode(exitcode.Internal, fmt.Errorf("reading stdin: %w", err))
		}
	}
	piped := len(payload) > 0
	if !piped {
		payload = nil
	}

	pos, err := splitArgs(args, cmd.ArgsLenAtDash(), piped)
	if runFlags.dryRun {
		var command []string
		if err == nil {
			command = nested.Innermost(pos.command, nested.SelfNames())
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(command, " "))
		return nil
	}
	if err != nil {
		return usageError(err)
	}

	req, err := buildRequest(cmd, pos, defaults)
	if err != nil {
		return usageError(err)
	}
	req.StdinPayload = payload

	return run(cmd, req)
}

func run(cmd *cobra.Command, req request.ExecutionRequest) error {
	runID := uuid.NewString()
	logger := logging.WithRun(slog.Default(), runID)

	var recorder retry.Recorder
	if runFlags.journalPath != "" {
		j, err := journal.Open(runFlags.journalPath)
		if err != nil {
			return exitcode.WithCode(exitcode.Internal, err)
		}
		defer j.Close()
		recorder = j
	}

	bridge := signals.New(signals.Config{Logger: logger})
	ctx, stop := bridge.Listen(cmd.Context())
	defer stop()

	reporter := report.New(report.Options{
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
		Interactive: !req.Background && report.IsTerminal(os.Stdout) && report.IsTerminal(os.Stderr),
		Verbose:     req.Verbose,
		Direction:   req.Direction(),
		Level:       req.NestingLevel,
	})

	controller := retry.New(retry.Config{
		Runner: supervisor.New(supervisor.Config{
			Reporter: reporter,
			Tracker:  bridge,
			Logger:   logger,

			// An outer instance may SIGKILL us; our child must not outlive that.
			DieWithParent: req.NestingLevel > 0,
		}),
		Reporter: reporter,
		Journal:  recorder,
		Logger:   logger,
		RunID:    runID,
	})

	logger.Debug("run starting", "command", req.Command, "deadline", req.Deadline, "retries", req.MaxRetries, "level", req.NestingLevel)
	out := controller.Run(ctx, req)
	if err := reporter.Close(); err != nil {
		logger.Warn("closing reporter", "error", err)
	}
	logger.Debug("run finished", "code", out.Code, "attempts", out.Attempts, "message", out.Message)

	if out.Code != exitcode.Success {
		return exitcode.WithCode(out.Code, nil)
	}
	return nil
}

// buildRequest applies flags over config defaults and validates the result.
func buildRequest(cmd *cobra.Command, pos positionals, defaults config.Defaults) (request.ExecutionRequest, error) {
	flags := cmd.Flags()

	timeout := pos.timeout
	if timeout == "" {
		timeout = defaults.Timeout
	}
	if timeout == "" {
		return request.ExecutionRequest{}, fmt.Errorf("the 'TIMEOUT' argument is required (either on command line or in config file)")
	}
	deadline, err := request.ParseDeadline(timeout)
	if err != nil {
		return request.ExecutionRequest{}, err
	}

	retries := defaults.Retries
	if flags.Changed("retries") {
		retries = runFlags.retries
	}
	direction := defaults.CountDirection
	if flags.Changed("count-direction") {
		if direction, err = request.ParseCountDirection(runFlags.countDirection); err != nil {
			return request.ExecutionRequest{}, err
		}
	}
	verbose := defaults.Verbose
	if flags.Changed("verbose") {
		verbose = runFlags.verbose
	}

	req := request.ExecutionRequest{
		Command:        pos.command,
		Deadline:       deadline,
		MaxRetries:     retries,
		CountDirection: direction,
		Verbose:        verbose,
		NestingLevel:   runFlags.nestingLevel,
		StdoutPath:     runFlags.stdoutPath,
		StderrPath:     runFlags.stderrPath,
		Background:     runFlags.background,
	}
	if err := req.Validate(); err != nil {
		return request.ExecutionRequest{}, err
	}
	return req, nil
}

func usageError(err error) error {
	return exitcode.WithCode(exitcode.Internal, fmt.Errorf("%w\n%s", err, usageLine))
}
