package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/dustin/go-humanize"
)

func indent(level int) string {
	return strings.Repeat("  ", level)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d/time.Second))
}

func signalName(e Event) string {
	if e.Signal == nil {
		return "signal"
	}
	switch e.Signal.String() {
	case "interrupt":
		return "SIGINT"
	case "terminated":
		return "SIGTERM"
	case "hangup":
		return "SIGHUP"
	}
	return e.Signal.String()
}

func argv0(e Event) string {
	if len(e.Command) == 0 {
		return ""
	}
	return e.Command[0]
}

// statusLine returns the single human-readable line for a terminal or retry
// event, or "" for kinds that have none.
func statusLine(e Event, verbose bool) string {
	switch e.Kind {
	case Retrying:
		return fmt.Sprintf("Retrying (%d/%d)...", e.Attempt, e.MaxRetries)
	case TimedOut:
		if verbose {
			return fmt.Sprintf("%s✗ Timeout reached (%s) - command terminated (level %d).", indent(e.Level), seconds(e.Deadline), e.Level)
		}
		return fmt.Sprintf("Timeout of %s reached. Command terminated.", seconds(e.Deadline))
	case Completed:
		if e.Code == 0 {
			if verbose {
				return fmt.Sprintf("%s✓ Command completed successfully (level %d).", indent(e.Level), e.Level)
			}
			return "Command finished successfully."
		}
		if verbose {
			return fmt.Sprintf("%s✗ Command failed with exit code %d (level %d).", indent(e.Level), e.Code, e.Level)
		}
		return fmt.Sprintf("Command failed with exit code %d.", e.Code)
	case LaunchFailed:
		mark := ""
		if verbose {
			mark = "✗ "
		}
		switch e.Launch {
		case exitcode.LaunchNotFound:
			return fmt.Sprintf("%sCommand not found: %s", mark, argv0(e))
		case exitcode.LaunchNotInvokable:
			return fmt.Sprintf("%sPermission denied: %s", mark, argv0(e))
		}
		return fmt.Sprintf("%sCannot execute command %s: %v", mark, argv0(e), e.Err)
	case Interrupted:
		return fmt.Sprintf("Received %s, child process terminated.", signalName(e))
	case Rejected:
		return e.Text
	case Fault:
		return fmt.Sprintf("An error occurred: %v", e.Err)
	}
	return ""
}

// verboseLines returns the extra lines verbose mode prints for an event.
func verboseLines(e Event) []string {
	pad := indent(e.Level)
	switch e.Kind {
	case Nested:
		return []string{
			fmt.Sprintf("%sNested ptimeout detected (level %d)", pad, e.Level+1),
			fmt.Sprintf("%sNested command: %s", pad, strings.Join(e.Command, " ")),
		}
	case AttemptStarted:
		if e.Attempt > 0 {
			return nil
		}
		header := fmt.Sprintf("%s=== ptimeout (level %d) ===", pad, e.Level)
		if e.Level > 0 {
			header = fmt.Sprintf("%s=== Nested ptimeout (level %d) ===", pad, e.Level)
		}
		lines := []string{
			header,
			fmt.Sprintf("%sCommand: %s", pad, strings.Join(e.Command, " ")),
			fmt.Sprintf("%sTimeout: %s, Retries: %d", pad, seconds(e.Deadline), e.MaxRetries),
		}
		if e.PayloadSize > 0 {
			lines = append(lines, fmt.Sprintf("%sPiped input data length: %s", pad, humanize.Bytes(uint64(e.PayloadSize))))
		}
		return lines
	}
	return nil
}

// countdownLine renders the verbose remaining-time line for a Progress event.
func countdownLine(e Event) string {
	remaining := e.Deadline - e.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	var s string
	if remaining >= time.Second {
		s = fmt.Sprintf("%.1fs", remaining.Seconds())
	} else {
		s = fmt.Sprintf("%dms", remaining.Milliseconds())
	}
	desc := "Outer"
	if e.Level > 0 {
		desc = fmt.Sprintf("Nested level %d", e.Level)
	}
	return fmt.Sprintf("%s⏱ %s timeout remaining: %s", indent(e.Level), desc, s)
}
