package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ptimeout [flags] TIMEOUT -- COMMAND [ARGS...]",
	Short: "Run a command with a deadline, a progress display and retries",
	Long: `Run a command with a time limit. The command and everything it spawns run in
their own process group, which is killed when the deadline passes.

TIMEOUT accepts s (seconds), m (minutes) or h (hours) suffixes, e.g. 10s, 5m,
1h; a bare number is seconds. Piped input is forwarded to the command's stdin;
with piped input and no command, the input is passed through cat.

Exit codes: the command's own code, 124 on timeout, 125 on ptimeout errors,
126 if the command cannot be executed, 127 if it is not found, 128+N when
interrupted by signal N.`,
	Example: `  ptimeout 10s -- ls -la
  ptimeout -r 3 30s -- curl -fsS https://example.com
  echo hello | ptimeout 5s
  ptimeout 1m -- ptimeout 10s -- ./flaky.sh`,
	Args:              cobra.ArbitraryArgs,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE:              runRoot,
}

var (
	logLevel  slog.LevelVar
	logLevelF string
	logFormat string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevelF, "log-level", "", "Diagnostic log level: debug, info, warn, error (default warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Diagnostic log format: text or json")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevelF)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return err
	}
	logLevel.Set(level)
	slog.SetDefault(logging.New(&logLevel, format))
	return nil
}

func main() {
	os.Exit(execute())
}

func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitcode.Success
	}
	var coded *exitcode.Error
	if errors.As(err, &coded) && coded.Err == nil {
		return coded.Code
	}
	fmt.Fprintf(os.Stderr, "ptimeout: error: %v\n", err)
	return exitcode.Code(err)
}
