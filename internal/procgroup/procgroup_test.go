//go:build unix

package procgroup

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/benaskins/ptimeout/internal/procgroup/pgtest"
)

func TestStartAndReap(t *testing.T) {
	h, err := Start(exec.Command("true"))
	require.NoError(t, err)
	require.Positive(t, h.Pid())

	require.True(t, h.Wait(5*time.Second))
	require.False(t, h.Alive())
	require.NotNil(t, h.State())
	require.Equal(t, 0, h.State().ExitCode())
	require.NoError(t, h.WaitErr())
}

func TestChildLeadsNewGroup(t *testing.T) {
	h, err := Start(exec.Command("sleep", "60"))
	require.NoError(t, err)
	defer h.Stop(time.Second)

	pgid, err := unix.Getpgid(h.Pid())
	require.NoError(t, err)
	require.Equal(t, h.Pid(), pgid)
	require.NotEqual(t, unix.Getpgrp(), pgid)
}

func TestKillReachesDescendants(t *testing.T) {
	pidFile := t.TempDir() + "/grandchild.pid"
	h, err := Start(exec.Command("sh", "-c", "sleep 60 & echo $! > "+pidFile+"; wait"))
	require.NoError(t, err)

	var grandchild int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		grandchild, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, h.Kill())
	require.True(t, h.Wait(5*time.Second))

	// The grandchild is reparented to init, which reaps it shortly after.
	require.Eventually(t, func() bool {
		return pgtest.ProcessGone(grandchild)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStopEscalatesToKill(t *testing.T) {
	h, err := Start(exec.Command("sh", "-c", "trap '' TERM; sleep 60"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, h.Stop(100*time.Millisecond))
	require.False(t, h.Alive())
	ws := h.State().Sys().(syscall.WaitStatus)
	require.True(t, ws.Signaled())
	require.Equal(t, syscall.SIGKILL, ws.Signal())
}

func TestSignalAfterReapIsNoop(t *testing.T) {
	h, err := Start(exec.Command("true"))
	require.NoError(t, err)
	h.Wait(0)

	require.NoError(t, h.Terminate())
	require.NoError(t, h.Kill())
	require.NoError(t, h.Stop(10*time.Millisecond))
}

func TestWaitTimeout(t *testing.T) {
	h, err := Start(exec.Command("sleep", "60"))
	require.NoError(t, err)
	defer h.Stop(time.Second)

	require.False(t, h.Wait(50*time.Millisecond))
	require.True(t, h.Alive())
	require.Nil(t, h.State())
}

func TestStartFailure(t *testing.T) {
	_, err := Start(exec.Command("/nonexistent/binary"))
	require.Error(t, err)
}
