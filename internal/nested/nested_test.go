package nested

import (
	"testing"

	"github.com/benaskins/ptimeout/internal/request"
	"github.com/stretchr/testify/require"
)

var self = []string{"ptimeout"}

func TestDetect(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    []string
		nested   bool
		args     []string
		command  []string
	}{
		{scenario: "simple", given: []string{"ptimeout", "5s", "--", "ls", "-la"}, nested: true, args: []string{"5s"}, command: []string{"ls", "-la"}},
		{scenario: "absolute path", given: []string{"/usr/local/bin/ptimeout", "-r", "2", "5s", "--", "true"}, nested: true, args: []string{"-r", "2", "5s"}, command: []string{"true"}},
		{scenario: "doubly nested", given: []string{"ptimeout", "9s", "--", "ptimeout", "2s", "--", "sleep", "1"}, nested: true, args: []string{"9s"}, command: []string{"ptimeout", "2s", "--", "sleep", "1"}},
		{scenario: "other program", given: []string{"timeout", "5s", "--", "ls"}},
		{scenario: "missing separator", given: []string{"ptimeout", "5s", "ls", "-la"}},
		{scenario: "separator too early", given: []string{"ptimeout", "--", "5s", "ls"}},
		{scenario: "nothing after separator", given: []string{"ptimeout", "-v", "5s", "--"}},
		{scenario: "too few tokens", given: []string{"ptimeout", "5s", "--"}},
		{scenario: "name only", given: []string{"ptimeout"}},
		{scenario: "empty", given: nil},
		{scenario: "name as suffix", given: []string{"not-ptimeout", "5s", "--", "ls"}},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			inv, ok := Detect(tc.given, self)
			require.Equal(t, tc.nested, ok)
			if !ok {
				return
			}
			require.Equal(t, tc.args, inv.Args)
			require.Equal(t, tc.command, inv.Command)
			require.Equal(t, tc.given, inv.Argv())
		})
	}
}

func TestDetectDoesNotAlias(t *testing.T) {
	argv := []string{"ptimeout", "5s", "--", "echo", "hi"}
	inv, ok := Detect(argv, self)
	require.True(t, ok)
	inv.Command[0] = "changed"
	require.Equal(t, "echo", argv[3])
}

func TestRewrite(t *testing.T) {
	inv := Invocation{Program: "ptimeout", Args: []string{"-d", "up", "2s"}, Command: []string{"sleep", "1"}}

	got := inv.Rewrite("/opt/bin/ptimeout", 2, Carry{Verbose: true, Direction: request.CountRemaining})
	require.Equal(t, []string{
		"/opt/bin/ptimeout", "--nesting-level", "2", "--verbose", "--count-direction", "down",
		"-d", "up", "2s", "--", "sleep", "1",
	}, got)

	got = inv.Rewrite("/opt/bin/ptimeout", 1, Carry{})
	require.Equal(t, []string{"/opt/bin/ptimeout", "--nesting-level", "1", "-d", "up", "2s", "--", "sleep", "1"}, got)
}

func TestInnermost(t *testing.T) {
	require.Equal(t, []string{"ls", "-la"},
		Innermost([]string{"ptimeout", "9s", "--", "ptimeout", "2s", "--", "ls", "-la"}, self))
	require.Equal(t, []string{"echo", "hi"}, Innermost([]string{"echo", "hi"}, self))
}

func TestSelfNames(t *testing.T) {
	names := SelfNames()
	require.Equal(t, ToolName, names[0])
	seen := map[string]bool{}
	for _, n := range names {
		require.False(t, seen[n], "duplicate name %q", n)
		seen[n] = true
	}
}
