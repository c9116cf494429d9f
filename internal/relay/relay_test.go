package relay

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/ptimeout/internal/procgroup"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// run spawns argv with a relay, waits for it and returns all relayed lines.
func run(t *testing.T, cfg Config, argv ...string) []Line {
	t.Helper()
	cmd := exec.Command(argv[0], argv[1:]...)
	r, err := Open(cmd, cfg)
	require.NoError(t, err)

	h, err := procgroup.Start(cmd)
	if err != nil {
		r.Abort()
		t.Fatalf("start: %v", err)
	}
	r.Started()

	var lines []Line
	for h.Alive() {
		r.Drain(func(l Line) { lines = append(lines, l) })
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, r.Close())
	r.Drain(func(l Line) { lines = append(lines, l) })
	return lines
}

func textOf(lines []Line, s Stream) string {
	var b strings.Builder
	for _, l := range lines {
		if l.Stream == s {
			b.WriteString(l.Text)
		}
	}
	return b.String()
}

func TestRelayShortOutput(t *testing.T) {
	lines := run(t, Config{}, "sh", "-c", "echo hello; echo oops >&2")
	require.Equal(t, "hello\n", textOf(lines, Stdout))
	require.Equal(t, "oops\n", textOf(lines, Stderr))
}

func TestRelayLargeOutputNoLoss(t *testing.T) {
	const n = 5000
	script := fmt.Sprintf("i=1; while [ $i -le %d ]; do echo out$i; echo err$i >&2; i=$((i+1)); done", n)
	lines := run(t, Config{}, "sh", "-c", script)

	var out, errs []string
	for _, l := range lines {
		if l.Stream == Stdout {
			out = append(out, strings.TrimSuffix(l.Text, "\n"))
		} else {
			errs = append(errs, strings.TrimSuffix(l.Text, "\n"))
		}
	}
	require.Len(t, out, n)
	require.Len(t, errs, n)
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("out%d", i+1), out[i])
		require.Equal(t, fmt.Sprintf("err%d", i+1), errs[i])
	}
}

func TestRelayTrailingPartialLine(t *testing.T) {
	lines := run(t, Config{}, "printf", "a\nb")
	require.Equal(t, "a\nb", textOf(lines, Stdout))
	require.Len(t, lines, 2)
}

func TestRelayInvalidUTF8Replaced(t *testing.T) {
	lines := run(t, Config{}, "printf", `\377ok\n`)
	require.Equal(t, "\uFFFDok\n", textOf(lines, Stdout))
}

func TestRelayStdinPayload(t *testing.T) {
	lines := run(t, Config{Stdin: []byte("A\nB\nC\n")}, "cat")
	require.Equal(t, "A\nB\nC\n", textOf(lines, Stdout))
}

func TestRelayStdinClosedWhenChildIgnoresIt(t *testing.T) {
	payload := []byte(strings.Repeat("x", 1<<20))
	lines := run(t, Config{Stdin: payload}, "true")
	require.Empty(t, lines)
}

func TestRelayEmptyPayloadDeliversEOF(t *testing.T) {
	lines := run(t, Config{Stdin: []byte{}}, "cat")
	require.Empty(t, lines)
}

func TestRelayRedirectFiles(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")
	errPath := filepath.Join(dir, "err.log")
	cfg := Config{StdoutPath: outPath, StderrPath: errPath}

	lines := run(t, cfg, "sh", "-c", "echo first; echo bad >&2")
	require.Empty(t, lines)
	lines = run(t, cfg, "echo", "second")
	require.Empty(t, lines)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(out))

	errOut, err := os.ReadFile(errPath)
	require.NoError(t, err)
	require.Equal(t, "bad\n", string(errOut))
}

func TestRelayMixedRedirect(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.log")
	lines := run(t, Config{StdoutPath: outPath}, "sh", "-c", "echo to-file; echo to-pipe >&2")
	require.Equal(t, "to-pipe\n", textOf(lines, Stderr))
	require.Empty(t, textOf(lines, Stdout))
}

func TestRelayRedirectOpenFailure(t *testing.T) {
	cmd := exec.Command("true")
	_, err := Open(cmd, Config{StdoutPath: filepath.Join(t.TempDir(), "missing", "out.log")})
	require.Error(t, err)
}

func TestRelayCloseIsBoundedWhenDescendantHoldsPipe(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo before; sleep 30 & exit 0")
	r, err := Open(cmd, Config{JoinTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	h, err := procgroup.Start(cmd)
	require.NoError(t, err)
	r.Started()
	h.Wait(0)

	start := time.Now()
	require.NoError(t, r.Close())
	require.Less(t, time.Since(start), 2*time.Second)

	var lines []Line
	r.Drain(func(l Line) { lines = append(lines, l) })
	require.Equal(t, "before\n", textOf(lines, Stdout))

	// The leader is reaped; clean up the orphaned sleep through its group.
	exec.Command("pkill", "-KILL", "-g", fmt.Sprint(h.Pid())).Run()
}

func TestDrainMergesByArrival(t *testing.T) {
	r := &Relay{queues: [2]*queue{{}, {}}}
	r.queues[Stdout].push(Line{Stream: Stdout, Text: "1", seq: 1})
	r.queues[Stderr].push(Line{Stream: Stderr, Text: "2", seq: 2})
	r.queues[Stdout].push(Line{Stream: Stdout, Text: "3", seq: 3})
	r.queues[Stderr].push(Line{Stream: Stderr, Text: "4", seq: 4})

	var got []string
	r.Drain(func(l Line) { got = append(got, l.Text) })
	require.Equal(t, []string{"1", "2", "3", "4"}, got)

	got = nil
	r.Drain(func(l Line) { got = append(got, l.Text) })
	require.Empty(t, got)
}

func TestAbortReleasesEndpoints(t *testing.T) {
	cmd := exec.Command("true")
	r, err := Open(cmd, Config{Stdin: []byte("x")})
	require.NoError(t, err)
	r.Abort()
	require.NoError(t, r.Close())
}

func TestStreamString(t *testing.T) {
	require.Equal(t, "stdout", Stdout.String())
	require.Equal(t, "stderr", Stderr.String())
}
