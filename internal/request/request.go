// Package request describes a single ptimeout invocation after the command
// line and config file have been resolved.
package request

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CountDirection selects whether progress shows elapsed or remaining time.
type CountDirection string

const (
	CountElapsed   CountDirection = "up"
	CountRemaining CountDirection = "down"
)

// ParseCountDirection accepts "up" or "down", case-insensitively.
func ParseCountDirection(s string) (CountDirection, error) {
	switch CountDirection(strings.ToLower(strings.TrimSpace(s))) {
	case CountElapsed:
		return CountElapsed, nil
	case CountRemaining:
		return CountRemaining, nil
	}
	return "", fmt.Errorf("invalid count direction %q: use 'up' or 'down'", s)
}

// ExecutionRequest is a fully validated request to run one command.
type ExecutionRequest struct {
	Command        []string
	Deadline       time.Duration
	MaxRetries     int
	CountDirection CountDirection
	StdinPayload   []byte
	Verbose        bool
	NestingLevel   int
	StdoutPath     string // redirect target, empty to pipe
	StderrPath     string
	Background     bool
}

// Validate checks the invariants the execution engine relies on.
func (r *ExecutionRequest) Validate() error {
	if len(r.Command) == 0 || r.Command[0] == "" {
		return errors.New("command is required")
	}
	if r.Deadline < 0 {
		return fmt.Errorf("deadline must not be negative, got %s", r.Deadline)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("retries must be a non-negative integer, got: %d. Example: ptimeout -r 3 30s -- echo hello", r.MaxRetries)
	}
	if r.NestingLevel < 0 {
		return fmt.Errorf("nesting level must not be negative, got %d", r.NestingLevel)
	}
	switch r.CountDirection {
	case "", CountElapsed, CountRemaining:
	default:
		return fmt.Errorf("invalid count direction %q", r.CountDirection)
	}
	return nil
}

// Direction returns the count direction, defaulting to elapsed.
func (r *ExecutionRequest) Direction() CountDirection {
	if r.CountDirection == "" {
		return CountElapsed
	}
	return r.CountDirection
}

// ParseDeadline converts "10s", "5m", "1h" or plain digits (seconds) into a
// whole-second duration. Zero is accepted here; the supervisor refuses to run
// with it.
func ParseDeadline(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("timeout string cannot be empty. Use positive integers followed by 's', 'm', 'h', or just seconds. Example: ptimeout 10s -- echo hello")
	}
	if strings.Contains(s, "-") {
		return 0, fmt.Errorf("invalid timeout format: %q. Timeout values must be positive integers followed by 's', 'm', 'h', or just seconds. Example: ptimeout 30s -- echo hello", s)
	}

	if isDigits(s) {
		return seconds(s, 1)
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeout format: %q. Use positive integers followed by 's', 'm', 'h', or just seconds. Example: ptimeout 30 -- echo hello", s)
	}

	value, unit := s[:len(s)-1], strings.ToLower(s[len(s)-1:])
	if !isDigits(value) {
		return 0, fmt.Errorf("invalid timeout format: %q. The numeric part must be a positive integer. Example: ptimeout 30s -- echo hello", s)
	}
	switch unit {
	case "s":
		return seconds(value, 1)
	case "m":
		return seconds(value, 60)
	case "h":
		return seconds(value, 60*60)
	}
	return 0, fmt.Errorf("invalid time unit: %q in %q. Use 's', 'm', or 'h'. Example: ptimeout 30s -- echo hello", unit, s)
}

func seconds(digits string, scale int64) (time.Duration, error) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout value: %q: %w", digits, err)
	}
	max := int64(time.Duration(1<<63-1) / time.Second / time.Duration(scale))
	if n > max {
		return 0, fmt.Errorf("timeout value %q is too large", digits)
	}
	return time.Duration(n*scale) * time.Second, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
