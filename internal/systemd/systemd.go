// Package systemd renders systemd user units that run a command under
// ptimeout.
package systemd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/benaskins/ptimeout/internal/request"
)

// DefaultExecutable is where ExecStart expects ptimeout to be installed.
const DefaultExecutable = "/usr/local/bin/ptimeout"

// RestartPolicies are the values systemd accepts for Restart=.
var RestartPolicies = []string{"no", "on-success", "on-failure", "on-abnormal", "on-abort", "always"}

// Service describes a unit to generate.
type Service struct {
	Name        string
	Description string
	After       string

	Executable     string
	Timeout        string
	Retries        int
	Verbose        bool
	CountDirection string
	Config         string
	Command        []string

	Environment      []string
	WorkingDirectory string
	User             string
	Group            string
	Restart          string
	RestartSec       int
	MemoryLimit      string
	CPUQuota         string
	StdoutLog        string
	StderrLog        string
}

// Validate checks that the unit can be rendered.
func (s *Service) Validate() error {
	if s.Name == "" {
		return errors.New("service name is required")
	}
	if strings.ContainsAny(s.Name, "/ ") {
		return fmt.Errorf("invalid service name %q", s.Name)
	}
	if _, err := request.ParseDeadline(s.Timeout); err != nil {
		return err
	}
	if s.Retries < 0 {
		return fmt.Errorf("retries must be a non-negative integer, got: %d", s.Retries)
	}
	if s.CountDirection != "" {
		if _, err := request.ParseCountDirection(s.CountDirection); err != nil {
			return err
		}
	}
	if len(s.Command) == 0 {
		return errors.New("command is required after '--'")
	}
	if s.Restart != "" && !slices.Contains(RestartPolicies, s.Restart) {
		return fmt.Errorf("invalid restart policy %q: use one of %s", s.Restart, strings.Join(RestartPolicies, ", "))
	}
	if s.RestartSec < 0 {
		return fmt.Errorf("restart-sec must not be negative, got %d", s.RestartSec)
	}
	for _, env := range s.Environment {
		if k, _, ok := strings.Cut(env, "="); !ok || k == "" {
			return fmt.Errorf("invalid environment %q: use KEY=VALUE", env)
		}
	}
	return nil
}

// UnitName returns the unit file name for the service.
func (s *Service) UnitName() string {
	if strings.HasSuffix(s.Name, ".service") {
		return s.Name
	}
	return s.Name + ".service"
}

// ExecStart returns the ptimeout argv the unit runs. Units always run in
// background mode: no terminal UI and no stdin.
func (s *Service) ExecStart() []string {
	exe := s.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	argv := []string{exe, "--background"}
	if s.Retries > 0 {
		argv = append(argv, "-r", strconv.Itoa(s.Retries))
	}
	if s.Verbose {
		argv = append(argv, "-v")
	}
	if s.CountDirection != "" {
		argv = append(argv, "-d", s.CountDirection)
	}
	if s.Config != "" {
		argv = append(argv, "--config", s.Config)
	}
	argv = append(argv, s.Timeout, "--")
	return append(argv, s.Command...)
}

// Options returns the unit's options in file order.
func (s *Service) Options() []*unit.UnitOption {
	description := s.Description
	if description == "" {
		description = "ptimeout managed service"
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", description),
		unit.NewUnitOption("Unit", "Documentation", "man:ptimeout(1)"),
	}
	if s.After != "" {
		opts = append(opts, unit.NewUnitOption("Unit", "After", s.After))
	}

	svc := func(name, value string) {
		opts = append(opts, unit.NewUnitOption("Service", name, value))
	}
	svc("Type", "simple")
	for _, env := range s.Environment {
		svc("Environment", quote(env))
	}
	svc("ExecStart", execLine(s.ExecStart()))
	if s.WorkingDirectory != "" {
		svc("WorkingDirectory", s.WorkingDirectory)
	}
	if s.User != "" {
		svc("User", s.User)
	}
	if s.Group != "" {
		svc("Group", s.Group)
	}
	if s.Restart != "" {
		svc("Restart", s.Restart)
	}
	if s.RestartSec > 0 {
		svc("RestartSec", strconv.Itoa(s.RestartSec))
	}
	if s.MemoryLimit != "" {
		svc("MemoryMax", s.MemoryLimit)
	}
	if s.CPUQuota != "" {
		svc("CPUQuota", s.CPUQuota)
	}
	if s.StdoutLog != "" {
		svc("StandardOutput", "append:"+s.StdoutLog)
	}
	if s.StderrLog != "" {
		svc("StandardError", "append:"+s.StderrLog)
	}

	return append(opts, unit.NewUnitOption("Install", "WantedBy", "default.target"))
}

// Render validates the service and returns the unit file contents.
func (s *Service) Render() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(unit.Serialize(s.Options()))
	if err != nil {
		return "", fmt.Errorf("serializing unit: %w", err)
	}
	return string(data), nil
}

// UserUnitDir returns the directory systemd reads user units from.
func UserUnitDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "systemd", "user"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating user unit directory: %w", err)
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

// WriteFile writes rendered unit contents to path, creating parent
// directories as needed.
func WriteFile(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating unit directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}
	return nil
}

func execLine(argv []string) string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = quote(escapeSpecifiers(arg))
	}
	return strings.Join(out, " ")
}

// escapeSpecifiers keeps systemd from expanding % specifiers and $ variables
// inside command arguments.
func escapeSpecifiers(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	return strings.ReplaceAll(s, "$", "$$")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\;") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
