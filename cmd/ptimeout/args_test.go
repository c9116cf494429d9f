package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		dash    int
		piped   bool
		want    positionals
		wantErr string
	}{
		{
			name: "timeout and command",
			args: []string{"10s", "ls", "-la"},
			dash: 1,
			want: positionals{timeout: "10s", command: []string{"ls", "-la"}},
		},
		{
			name: "timeout from config",
			args: []string{"echo", "hi"},
			dash: 0,
			want: positionals{command: []string{"echo", "hi"}},
		},
		{
			name: "nested command keeps its separator",
			args: []string{"1m", "ptimeout", "5s", "--", "echo"},
			dash: 1,
			want: positionals{timeout: "1m", command: []string{"ptimeout", "5s", "--", "echo"}},
		},
		{
			name:    "missing separator",
			args:    []string{"10s", "ls"},
			dash:    -1,
			wantErr: "missing '--' separator",
		},
		{
			name:    "no arguments",
			dash:    -1,
			wantErr: "'COMMAND' argument is required",
		},
		{
			name:    "nothing after separator",
			args:    []string{"10s"},
			dash:    1,
			wantErr: "no command found after '--'",
		},
		{
			name:    "extra arguments before separator",
			args:    []string{"10s", "extra", "ls"},
			dash:    2,
			wantErr: "unexpected arguments before '--'",
		},
		{
			name:  "piped input defaults to cat",
			args:  []string{"5s"},
			dash:  -1,
			piped: true,
			want:  positionals{timeout: "5s", command: []string{"cat"}},
		},
		{
			name:  "piped input with empty separator",
			args:  []string{"5s"},
			dash:  1,
			piped: true,
			want:  positionals{timeout: "5s", command: []string{"cat"}},
		},
		{
			name:  "piped input without separator",
			args:  []string{"5s", "wc", "-l"},
			dash:  -1,
			piped: true,
			want:  positionals{timeout: "5s", command: []string{"wc", "-l"}},
		},
		{
			name:  "piped input with nothing",
			dash:  -1,
			piped: true,
			want:  positionals{command: []string{"cat"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitArgs(tt.args, tt.dash, tt.piped)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
