// Package relay drains a child's stdout and stderr without ever blocking the
// caller. Each piped stream gets a dedicated reader goroutine that pushes
// decoded lines into its own queue; the caller empties the queues whenever it
// likes. An optional stdin payload is written by a separate feeder.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultJoinTimeout bounds how long Close waits for readers after the child
// is gone. Descendants that inherited the pipe can otherwise hold it open.
const DefaultJoinTimeout = 500 * time.Millisecond

// Stream identifies which child stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one decoded line of child output, including its trailing newline
// when the child wrote one.
type Line struct {
	Stream Stream
	Text   string
	seq    uint64
}

// Config describes where one attempt's streams go.
type Config struct {
	StdoutPath  string // append child stdout to this file instead of piping it
	StderrPath  string
	Stdin       []byte // written then closed; nil leaves stdin on /dev/null
	JoinTimeout time.Duration
}

// Relay owns the stream endpoints of one attempt.
type Relay struct {
	cfg Config
	seq atomic.Uint64

	queues [2]*queue

	// parent ends, read or written by goroutines
	readers [2]*os.File
	stdinW  *os.File

	// child ends, closed once the child has them
	childEnds []*os.File
	// redirect files, closed at attempt end
	files []*os.File

	g      errgroup.Group
	closed bool
}

// Open creates the pipes and files for cfg and attaches them to cmd. It must
// be called before cmd.Start. After Start, call Started on success or Abort
// on failure; Close must follow either way.
func Open(cmd *exec.Cmd, cfg Config) (*Relay, error) {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	r := &Relay{
		cfg:    cfg,
		queues: [2]*queue{{}, {}},
	}

	out, err := r.endpoint(Stdout, cfg.StdoutPath)
	if err != nil {
		r.Abort()
		return nil, err
	}
	errOut, err := r.endpoint(Stderr, cfg.StderrPath)
	if err != nil {
		r.Abort()
		return nil, err
	}
	cmd.Stdout = out
	cmd.Stderr = errOut

	if cfg.Stdin != nil {
		pr, pw, err := os.Pipe()
		if err != nil {
			r.Abort()
			return nil, fmt.Errorf("creating stdin pipe: %w", err)
		}
		r.childEnds = append(r.childEnds, pr)
		r.stdinW = pw
		cmd.Stdin = pr
	}
	return r, nil
}

func (r *Relay) endpoint(s Stream, path string) (*os.File, error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening %s redirect: %w", s, err)
		}
		r.files = append(r.files, f)
		return f, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating %s pipe: %w", s, err)
	}
	r.readers[s] = pr
	r.childEnds = append(r.childEnds, pw)
	return pw, nil
}

// Started releases the parent's copies of the child ends and starts the
// reader and feeder goroutines.
func (r *Relay) Started() {
	r.closeChildEnds()
	for s, f := range r.readers {
		if f == nil {
			continue
		}
		stream, f := Stream(s), f
		r.g.Go(func() error { return r.read(stream, f) })
	}
	if r.stdinW != nil {
		w, payload := r.stdinW, r.cfg.Stdin
		r.g.Go(func() error { return feed(w, payload) })
	}
}

// Abort releases every endpoint after a failed spawn.
func (r *Relay) Abort() {
	r.closeChildEnds()
	for _, f := range r.readers {
		if f != nil {
			f.Close()
		}
	}
	if r.stdinW != nil {
		r.stdinW.Close()
	}
	r.closeFiles()
	r.closed = true
}

func (r *Relay) read(s Stream, f *os.File) error {
	br := bufio.NewReader(f)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			r.queues[s].push(Line{
				Stream: s,
				Text:   strings.ToValidUTF8(text, "\uFFFD"),
				seq:    r.seq.Add(1),
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", s, err)
		}
	}
}

// feed writes the whole payload and then closes the pipe, even when the write
// fails, so the child always sees EOF. A child that exits without reading its
// input is not an error.
func feed(w *os.File, payload []byte) error {
	_, err := w.Write(payload)
	w.Close()
	if err != nil && !errors.Is(err, fs.ErrClosed) && !errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("writing stdin: %w", err)
	}
	return nil
}

// Drain hands every queued line to fn in arrival order without blocking.
func (r *Relay) Drain(fn func(Line)) {
	out := r.queues[Stdout].take()
	errs := r.queues[Stderr].take()
	for len(out) > 0 || len(errs) > 0 {
		if len(errs) == 0 || (len(out) > 0 && out[0].seq < errs[0].seq) {
			fn(out[0])
			out = out[1:]
			continue
		}
		fn(errs[0])
		errs = errs[1:]
	}
}

// Close joins the goroutines, waiting at most the join timeout before forcing
// the parent ends shut, and closes redirect files. Call it only after the
// child has been reaped, then Drain once more for trailing output.
func (r *Relay) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	done := make(chan error, 1)
	go func() { done <- r.g.Wait() }()

	t := time.NewTimer(r.cfg.JoinTimeout)
	defer t.Stop()

	var err error
	select {
	case err = <-done:
	case <-t.C:
		r.forceClose()
		err = <-done
	}
	r.closeReaders()
	r.closeFiles()
	return err
}

func (r *Relay) forceClose() {
	r.closeReaders()
	if r.stdinW != nil {
		r.stdinW.Close()
	}
}

func (r *Relay) closeReaders() {
	for _, f := range r.readers {
		if f != nil {
			f.Close()
		}
	}
}

func (r *Relay) closeChildEnds() {
	for _, f := range r.childEnds {
		f.Close()
	}
	r.childEnds = nil
}

func (r *Relay) closeFiles() {
	for _, f := range r.files {
		f.Close()
	}
	r.files = nil
}

type queue struct {
	mu    sync.Mutex
	lines []Line
}

func (q *queue) push(l Line) {
	q.mu.Lock()
	q.lines = append(q.lines, l)
	q.mu.Unlock()
}

func (q *queue) take() []Line {
	q.mu.Lock()
	defer q.mu.Unlock()
	lines := q.lines
	q.lines = nil
	return lines
}
