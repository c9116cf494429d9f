package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benaskins/ptimeout/internal/logbuf"
	"github.com/benaskins/ptimeout/internal/relay"
	"github.com/benaskins/ptimeout/internal/request"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MaxDisplayLines is how many trailing output lines the panel shows.
const MaxDisplayLines = 20

var (
	descStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	stderrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("2")).Padding(0, 1)
)

// Interactive renders a live progress bar and a scrolling panel of the most
// recent output on a terminal. Status lines are printed once the display has
// been torn down so they remain in the scrollback.
type Interactive struct {
	program *tea.Program
	stderr  io.Writer
	verbose bool

	done   chan struct{}
	runErr error

	mu      sync.Mutex
	pending []string
	closed  sync.Once
}

type eventMsg Event

// NewInteractive starts the display on opts.Stderr. It never reads the
// terminal and leaves signal handling to the caller.
func NewInteractive(opts Options) *Interactive {
	i := &Interactive{
		stderr:  opts.Stderr,
		verbose: opts.Verbose,
		done:    make(chan struct{}),
	}
	i.program = tea.NewProgram(newModel(opts),
		tea.WithOutput(opts.Stderr),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	go func() {
		_, err := i.program.Run()
		i.runErr = err
		close(i.done)
	}()
	return i
}

func (i *Interactive) Report(e Event) {
	if e.Kind != OutputLine && e.Kind != Progress {
		var lines []string
		if i.verbose {
			lines = verboseLines(e)
		}
		if line := statusLine(e, i.verbose); line != "" {
			lines = append(lines, styleStatus(e, line))
		}
		if len(lines) > 0 {
			i.mu.Lock()
			i.pending = append(i.pending, lines...)
			i.mu.Unlock()
		}
	}

	select {
	case <-i.done:
	default:
		i.program.Send(eventMsg(e))
	}
}

// Close stops the display and prints the collected status lines.
func (i *Interactive) Close() error {
	i.closed.Do(func() {
		i.program.Quit()
		<-i.done

		i.mu.Lock()
		defer i.mu.Unlock()
		for _, line := range i.pending {
			fmt.Fprintln(i.stderr, line)
		}
		i.pending = nil
	})
	return i.runErr
}

func styleStatus(e Event, line string) string {
	switch {
	case e.Kind == Completed && e.Code == 0:
		return successStyle.Render(line)
	case e.Kind == Retrying || e.Kind == Interrupted:
		return warnStyle.Render(line)
	}
	return failStyle.Render(line)
}

type model struct {
	direction request.CountDirection
	bar       progress.Model
	ring      *logbuf.Ring

	level    int
	attempt  int
	deadline time.Duration
	elapsed  time.Duration
	result   string
	width    int
}

func newModel(opts Options) model {
	return model{
		direction: opts.Direction,
		level:     opts.Level,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(40)),
		ring:      logbuf.New(MaxDisplayLines),
		width:     80,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width-40)
	case eventMsg:
		m = m.apply(Event(msg))
	}
	return m, nil
}

func (m model) apply(e Event) model {
	switch e.Kind {
	case AttemptStarted:
		m.level = e.Level
		m.attempt = e.Attempt
		m.deadline = e.Deadline
		m.elapsed = 0
		m.result = ""
		m.ring.Reset()
	case OutputLine:
		m.ring.Add(e.Text, e.Stream == relay.Stderr)
	case Progress:
		m.elapsed = e.Elapsed
		m.deadline = e.Deadline
	case Completed:
		m.elapsed = m.deadline
		if e.Code == 0 {
			m.result = successStyle.Render("Success")
		} else {
			m.result = failStyle.Render("Failed")
		}
	case TimedOut:
		m.elapsed = m.deadline
		m.result = failStyle.Render("Timed out")
	}
	return m
}

func (m model) percent() float64 {
	if m.deadline <= 0 {
		return 0
	}
	p := float64(m.elapsed) / float64(m.deadline)
	return min(max(p, 0), 1)
}

func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}

func (m model) View() string {
	desc := fmt.Sprintf("timeout (level %d)", m.level)
	if m.level > 0 {
		desc = strings.Repeat("  ", m.level-1) + "└─ " + desc
	}
	desc = descStyle.Render(desc)
	if m.result != "" {
		desc = m.result
	}

	shown := m.elapsed
	if m.direction == request.CountRemaining {
		shown = m.deadline - m.elapsed
	}
	pct := m.percent()
	header := fmt.Sprintf("%s %s %3.0f%% %s", desc, m.bar.ViewAs(pct), pct*100, clock(shown))

	var body strings.Builder
	for i, e := range m.ring.Entries() {
		if i > 0 {
			body.WriteByte('\n')
		}
		if e.Stderr {
			body.WriteString(stderrStyle.Render(e.Text))
		} else {
			body.WriteString(e.Text)
		}
	}
	title := fmt.Sprintf("Output (Attempt %d)", m.attempt+1)
	panel := panelStyle.Width(max(20, m.width-2)).Render(body.String())

	return header + "\n" + title + "\n" + panel + "\n"
}
