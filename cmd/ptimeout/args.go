package main

import (
	"errors"
	"fmt"
)

// defaultPipeCommand runs when input is piped in without a command.
var defaultPipeCommand = []string{"cat"}

type positionals struct {
	timeout string // empty when left to the config file
	command []string
}

// splitArgs separates TIMEOUT from the command. dash is the number of
// positional arguments before "--", or -1 without one. The separator is
// mandatory unless input is piped.
func splitArgs(args []string, dash int, piped bool) (positionals, error) {
	if dash < 0 {
		if !piped {
			if len(args) == 0 {
				return positionals{}, errors.New("the 'COMMAND' argument is required, preceded by '--'")
			}
			return positionals{}, errors.New("missing '--' separator. Command must be preceded by '--' to separate from ptimeout options.\nExample: ptimeout 10s -- ls -la")
		}
		var pos positionals
		if len(args) > 0 {
			pos.timeout = args[0]
			pos.command = args[1:]
		}
		if len(pos.command) == 0 {
			pos.command = defaultPipeCommand
		}
		return pos, nil
	}

	before, after := args[:dash], args[dash:]
	var pos positionals
	switch len(before) {
	case 0:
	case 1:
		pos.timeout = before[0]
	default:
		return positionals{}, fmt.Errorf("unexpected arguments before '--': %q. The correct order is: ptimeout TIMEOUT [OPTIONS] -- COMMAND [ARGS...]", before[1:])
	}

	pos.command = after
	if len(pos.command) == 0 {
		if !piped {
			return positionals{}, errors.New("no command found after '--' separator. Please specify a command to execute.\nExample: ptimeout 10s -- echo 'Hello World'")
		}
		pos.command = defaultPipeCommand
	}
	return pos, nil
}
