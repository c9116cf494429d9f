//go:build unix

// Package pgtest provides helpers for tests that check process groups have
// been torn down.
package pgtest

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcessGone reports whether pid no longer runs. A zombie waiting for a
// non-reaping init counts as gone.
func ProcessGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	st, ok := stat(pid)
	return ok && st.state == 'Z'
}

// GroupGone reports whether no live process is left in process group pgid.
func GroupGone(pgid int) bool {
	if err := unix.Kill(-pgid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return false
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		st, ok := stat(pid)
		if ok && st.pgrp == pgid && st.state != 'Z' {
			return false
		}
	}
	return true
}

type procStat struct {
	state byte
	pgrp  int
}

// stat parses /proc/<pid>/stat; it reports false where /proc is unavailable.
func stat(pid int) (procStat, bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, false
	}
	// The command name may contain spaces and parentheses; fields resume
	// after the last ')'.
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return procStat{}, false
	}
	fields := strings.Fields(s[i+1:])
	if len(fields) < 3 || len(fields[0]) != 1 {
		return procStat{}, false
	}
	pgrp, err := strconv.Atoi(fields[2])
	if err != nil {
		return procStat{}, false
	}
	return procStat{state: fields[0][0], pgrp: pgrp}, true
}
