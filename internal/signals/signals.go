// Package signals bridges process-wide termination signals to the child
// process group of the attempt that is currently running.
package signals

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benaskins/ptimeout/internal/exitcode"
	"github.com/benaskins/ptimeout/internal/procgroup"
)

const (
	// DefaultGrace is the wait between SIGTERM and SIGKILL for the child group.
	DefaultGrace = 100 * time.Millisecond
	// DefaultForceExitAfter bounds how long the main flow gets to unwind
	// after a signal before the bridge exits the program itself.
	DefaultForceExitAfter = 2 * time.Second
)

// Slot holds the handle of the attempt in flight. It is written right after
// spawn and emptied when the attempt ends, whatever the outcome.
type Slot struct {
	mu sync.Mutex
	h  *procgroup.Handle
}

// Track stores h as the current handle.
func (s *Slot) Track(h *procgroup.Handle) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

// Untrack empties the slot.
func (s *Slot) Untrack(*procgroup.Handle) {
	s.mu.Lock()
	s.h = nil
	s.mu.Unlock()
}

// Current returns the tracked handle, or nil between attempts.
func (s *Slot) Current() *procgroup.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// Config configures a Bridge. Zero values select defaults.
type Config struct {
	Signals        []os.Signal
	Grace          time.Duration
	ForceExitAfter time.Duration
	Exit           func(code int)
	Logger         *slog.Logger
}

// Bridge turns the first terminating signal into: cancel the run, stop the
// tracked process group, and make sure the program exits with 128+N. A
// second signal exits immediately.
type Bridge struct {
	Slot

	signals        []os.Signal
	grace          time.Duration
	forceExitAfter time.Duration
	exit           func(int)
	logger         *slog.Logger

	mu       sync.Mutex
	received os.Signal
	timer    *time.Timer
}

// New creates a Bridge. It does nothing until Listen is called.
func New(cfg Config) *Bridge {
	b := &Bridge{
		signals:        cfg.Signals,
		grace:          cfg.Grace,
		forceExitAfter: cfg.ForceExitAfter,
		exit:           cfg.Exit,
		logger:         cfg.Logger,
	}
	if len(b.signals) == 0 {
		b.signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if b.grace <= 0 {
		b.grace = DefaultGrace
	}
	if b.forceExitAfter <= 0 {
		b.forceExitAfter = DefaultForceExitAfter
	}
	if b.exit == nil {
		b.exit = os.Exit
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "signals")
	return b
}

// Listen starts delivering signals to the bridge. The returned context is
// cancelled with an *exitcode.SignalError cause when a signal arrives. stop
// must be called once the run has finished; it releases the signal handlers
// and disarms the forced exit.
func (b *Bridge) Listen(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, b.signals...)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig := <-sigCh:
				b.handle(sig, cancel)
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
			<-done
			b.mu.Lock()
			if b.timer != nil {
				b.timer.Stop()
			}
			b.mu.Unlock()
			cancel(nil)
		})
	}
	return ctx, stop
}

// Received returns the first signal delivered, or nil.
func (b *Bridge) Received() os.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.received
}

func (b *Bridge) handle(sig os.Signal, cancel context.CancelCauseFunc) {
	code := exitcode.FromSignal(sig)

	b.mu.Lock()
	first := b.received == nil
	if first {
		b.received = sig
	}
	b.mu.Unlock()

	if !first {
		b.logger.Warn("second signal, exiting immediately", "signal", sig)
		b.stopChild()
		b.exit(code)
		return
	}

	b.logger.Info("received signal, terminating child process group", "signal", sig)
	cancel(&exitcode.SignalError{Signal: sig})
	b.stopChild()

	b.mu.Lock()
	b.timer = time.AfterFunc(b.forceExitAfter, func() {
		b.logger.Warn("run did not unwind after signal, forcing exit", "signal", sig)
		b.exit(code)
	})
	b.mu.Unlock()
}

// stopChild terminates the tracked group, escalating to SIGKILL after the
// grace period. A child that is already gone is not an error.
func (b *Bridge) stopChild() {
	h := b.Current()
	if h == nil {
		return
	}
	if err := h.Terminate(); err != nil {
		b.logger.Warn("terminating process group", "pid", h.Pid(), "error", err)
	}
	if h.Wait(b.grace) {
		return
	}
	if err := h.Kill(); err != nil {
		b.logger.Warn("killing process group", "pid", h.Pid(), "error", err)
	}
}
