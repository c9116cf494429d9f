package logbuf

import (
	"strings"
	"sync"
)

// Entry is one line of child output held for display.
type Entry struct {
	Text   string // without the trailing newline
	Stderr bool
}

// Ring is a thread-safe ring buffer that stores the last N output lines.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	full    bool
}

// New creates a ring buffer that stores the last n lines.
func New(n int) *Ring {
	if n <= 0 {
		n = 1
	}
	return &Ring{
		entries: make([]Entry, n),
		size:    n,
	}
}

// Add stores one line. A trailing newline is dropped.
func (r *Ring) Add(text string, stderr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.pos] = Entry{Text: strings.TrimRight(text, "\r\n"), Stderr: stderr}
	r.pos = (r.pos + 1) % r.size
	if r.pos == 0 {
		r.full = true
	}
}

// Reset discards every stored line.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.entries)
	r.pos = 0
	r.full = false
}

// Entries returns all stored lines in order, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		result := make([]Entry, r.pos)
		copy(result, r.entries[:r.pos])
		return result
	}

	result := make([]Entry, r.size)
	copy(result, r.entries[r.pos:])
	copy(result[r.size-r.pos:], r.entries[:r.pos])
	return result
}

// Last returns the last n lines. If fewer lines exist, returns all of them.
func (r *Ring) Last(n int) []Entry {
	all := r.Entries()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
