// Package config loads ptimeout defaults from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benaskins/ptimeout/internal/request"
)

// EnvPath names the environment variable that overrides the default path.
const EnvPath = "PTIMEOUT_CONFIG"

// Config holds defaults loaded from ~/.config/ptimeout/config.yaml. Values are
// kept as written so that one bad key does not invalidate the file.
type Config struct {
	Timeout        string `yaml:"timeout"`
	Retries        string `yaml:"retries"`
	CountDirection string `yaml:"count_direction"`
	Verbose        string `yaml:"verbose"`
	LogLevel       string `yaml:"log_level"`
}

// Defaults are the usable values of a Config.
type Defaults struct {
	Timeout        string // parsed by the caller with request.ParseDeadline
	Retries        int
	CountDirection request.CountDirection
	Verbose        bool
	LogLevel       string
}

// DefaultPath returns the default config file path: ~/.config/ptimeout/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ptimeout", "config.yaml")
}

// Path picks the config file: the explicit path if given, then $PTIMEOUT_CONFIG,
// then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath()
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults converts the file's values. Invalid values are skipped and
// reported as warnings; they never fail the load.
func (c *Config) Defaults() (Defaults, []error) {
	d := Defaults{
		Timeout:        strings.TrimSpace(c.Timeout),
		CountDirection: request.CountElapsed,
		LogLevel:       strings.TrimSpace(c.LogLevel),
	}
	var warnings []error

	if s := strings.TrimSpace(c.Retries); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Errorf("ignoring retries %q: not an integer", s))
		case n < 0:
			warnings = append(warnings, fmt.Errorf("ignoring retries %d: must not be negative", n))
		default:
			d.Retries = n
		}
	}

	if s := strings.TrimSpace(c.CountDirection); s != "" {
		dir, err := request.ParseCountDirection(s)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("ignoring count_direction: %w", err))
		} else {
			d.CountDirection = dir
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Verbose)) {
	case "true", "1", "yes", "on":
		d.Verbose = true
	}

	return d, warnings
}
