// Package journal provides an append-only record of attempts.
//
// With --journal, every attempt a run makes is appended to the given file as
// one line of JSON, so that unattended runs (cron, systemd) leave a trail of
// what was tried and how each try ended.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is a single journal record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	RunID      string    `json:"run_id,omitempty"`
	Level      int       `json:"level"`
	Attempt    int       `json:"attempt"`
	Command    []string  `json:"command"`
	Outcome    string    `json:"outcome"`
	ExitCode   int       `json:"exit_code"`
	DurationMS int64     `json:"duration_ms"`
	Launch     string    `json:"launch,omitempty"` // launch failure kind
	Signal     string    `json:"signal,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Journal writes entries to an append-only file.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates or opens a journal file for appending.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{file: f, path: path}, nil
}

// Path returns the file the journal writes to.
func (j *Journal) Path() string { return j.path }

// Record writes an entry.
func (j *Journal) Record(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.file.Close()
}
