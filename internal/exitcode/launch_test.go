package exitcode

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func startErr(t *testing.T, name string) error {
	t.Helper()
	err := exec.Command(name).Start()
	require.Error(t, err)
	return err
}

func TestClassifyLaunch(t *testing.T) {
	dir := t.TempDir()

	noExec := filepath.Join(dir, "noexec.sh")
	require.NoError(t, os.WriteFile(noExec, []byte("#!/bin/sh\necho hi\n"), 0o644))

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte{0x00, 0x01, 0x02, 0x03}, 0o755))

	var testCases = []struct {
		scenario string
		given    error
		then     LaunchKind
		code     int
	}{
		{scenario: "not on PATH", given: startErr(t, "definitely-not-a-real-command-xyz"), then: LaunchNotFound, code: NotFound},
		{scenario: "missing path", given: startErr(t, filepath.Join(dir, "missing")), then: LaunchNotFound, code: NotFound},
		{scenario: "not executable", given: startErr(t, noExec), then: LaunchNotInvokable, code: NotInvokable},
		{scenario: "bad format", given: startErr(t, garbage), then: LaunchNotInvokable, code: NotInvokable},
		{scenario: "directory", given: startErr(t, dir), then: LaunchNotInvokable, code: NotInvokable},
		{scenario: "other", given: errors.New("something odd"), then: LaunchOther, code: NotInvokable},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			kind := ClassifyLaunch(tc.given)
			require.Equal(t, tc.then, kind, "error: %v", tc.given)
			require.Equal(t, tc.code, kind.Code())
		})
	}
}

func TestLaunchKindString(t *testing.T) {
	require.Equal(t, "not_found", LaunchNotFound.String())
	require.Equal(t, "not_invokable", LaunchNotInvokable.String())
	require.Equal(t, "os_error", LaunchOther.String())
	require.Equal(t, "unknown", LaunchKind(0).String())
}
