// Package nested recognizes a command that is itself a ptimeout invocation,
// purely from the shape of its argv.
package nested

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/benaskins/ptimeout/internal/request"
)

const (
	// Separator ends ptimeout's own arguments.
	Separator = "--"
	// MaxDepth caps how deep nested invocations may go.
	MaxDepth = 8
	// LevelFlag passes the nesting level down to an inner instance.
	LevelFlag = "--nesting-level"
	// ToolName is the canonical executable name.
	ToolName = "ptimeout"
)

// Invocation is a parsed nested call: ptimeout <Args...> -- <Command...>.
type Invocation struct {
	Program string
	Args    []string
	Command []string
}

// Argv returns the full nested argv as originally written.
func (inv Invocation) Argv() []string {
	out := append([]string{inv.Program}, inv.Args...)
	out = append(out, Separator)
	return append(out, inv.Command...)
}

// Carry holds the outer settings an inner instance inherits unless its own
// arguments override them.
type Carry struct {
	Verbose   bool
	Direction request.CountDirection
}

// Rewrite returns the argv that runs the inner instance through exe at the
// given nesting level. Inherited flags come first so the inner instance's
// own flags win.
func (inv Invocation) Rewrite(exe string, level int, carry Carry) []string {
	out := []string{exe, LevelFlag, strconv.Itoa(level)}
	if carry.Verbose {
		out = append(out, "--verbose")
	}
	if carry.Direction != "" {
		out = append(out, "--count-direction", string(carry.Direction))
	}
	out = append(out, inv.Args...)
	out = append(out, Separator)
	return append(out, inv.Command...)
}

// Detect reports whether argv invokes this tool. It needs the program name,
// at least one argument, the separator and a command after it; anything
// else is not nested and runs as an ordinary command.
func Detect(argv []string, selfNames []string) (Invocation, bool) {
	if len(argv) < 4 {
		return Invocation{}, false
	}
	if !slices.Contains(selfNames, filepath.Base(argv[0])) {
		return Invocation{}, false
	}
	sep := slices.Index(argv, Separator)
	if sep < 2 || sep == len(argv)-1 {
		return Invocation{}, false
	}
	return Invocation{
		Program: argv[0],
		Args:    slices.Clone(argv[1:sep]),
		Command: slices.Clone(argv[sep+1:]),
	}, true
}

// Innermost follows nested invocations down to the command that would
// finally be executed, at most MaxDepth levels deep.
func Innermost(argv []string, selfNames []string) []string {
	for i := 0; i < MaxDepth; i++ {
		inv, ok := Detect(argv, selfNames)
		if !ok {
			break
		}
		argv = inv.Command
	}
	return argv
}

// SelfNames returns the names under which this executable may appear as
// argv[0] of a nested call.
func SelfNames() []string {
	names := []string{ToolName}
	add := func(name string) {
		if name != "" && name != "." && name != "/" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(os.Args) > 0 {
		add(filepath.Base(os.Args[0]))
	}
	if exe, err := os.Executable(); err == nil {
		add(filepath.Base(exe))
	}
	return names
}
