package progress

import (
	"fmt"
	"strings"
	"time"

	"batch-runner/internal/engine"
	"batch-runner/internal/model"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxResultRows = 8
	maxLogRows    = 6
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tuiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	tuiStyles     = newStyles(lipgloss.DefaultRenderer())
)

type startedMsg struct{ start time.Time }

type initializedMsg struct {
	total int
	ops   []string
}

type itemMsg struct {
	title  string
	status model.Status
}

type progressMsg struct{ fraction float64 }

type logMsg struct{ line string }

type completedMsg struct {
	elapsed time.Duration
	status  model.Status
	summary model.JobSummary
}

type resultRow struct {
	title  string
	status model.Status
}

type monitorModel struct {
	bar  bprogress.Model
	spin spinner.Model

	width     int
	start     time.Time
	now       func() time.Time
	total     int
	ops       []string
	fraction  float64
	results   []resultRow
	logs      []string
	finished  bool
	status    model.Status
	elapsed   time.Duration
	summary   model.JobSummary
	stopping  bool
	interrupt func()
}

func newMonitorModel(interrupt func()) monitorModel {
	return monitorModel{
		bar:       bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(40)),
		spin:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:     80,
		now:       time.Now,
		interrupt: interrupt,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-24, 10, 80)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.finished {
				return m, tea.Quit
			}
			if !m.stopping && m.interrupt != nil {
				m.interrupt()
			}
			m.stopping = true
		}
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case startedMsg:
		m.start = msg.start
	case initializedMsg:
		m.total = msg.total
		m.ops = msg.ops
	case itemMsg:
		m.results = appendCapped(m.results, resultRow(msg), maxResultRows)
	case progressMsg:
		m.fraction = msg.fraction
	case logMsg:
		m.logs = appendCapped(m.logs, msg.line, maxLogRows)
	case completedMsg:
		m.finished = true
		m.status = msg.status
		m.elapsed = msg.elapsed
		m.summary = msg.summary
		return m, tea.Quit
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder
	header := tuiTitleStyle.Render("batch-runner export")
	if !m.finished {
		header = m.spin.View() + " " + header
	}
	b.WriteString(header + "\n")

	done := len(m.results)
	if n := m.summary.Processed(); n > done {
		done = n
	}
	line := fmt.Sprintf("%s %d/%d", m.bar.ViewAs(m.fraction), done, m.total)
	if !m.finished && m.now != nil && !m.start.IsZero() {
		if eta := estimateETA(m.now().Sub(m.start), m.fraction); eta != "" && m.fraction < 1 {
			line += " | eta ~ " + eta
		}
	}
	b.WriteString(line + "\n")
	if len(m.ops) > 0 {
		b.WriteString(tuiMutedStyle.Render("formats: "+strings.Join(m.ops, ", ")) + "\n")
	}

	if len(m.results) > 0 {
		rows := make([]string, 0, len(m.results))
		for _, r := range m.results {
			rows = append(rows, fmt.Sprintf("%s %s", tuiStyles.status(r.status).Render(fmt.Sprintf("%-11s", r.status)), r.title))
		}
		b.WriteString(tuiPanelStyle.Width(clampInt(m.width-2, 20, 120)).Render(strings.Join(rows, "\n")) + "\n")
	}
	for _, l := range m.logs {
		b.WriteString(tuiMutedStyle.Render(l) + "\n")
	}

	switch {
	case m.finished:
		fmt.Fprintf(&b, "Operation completed: %s: %s | processed %d, warning %d, failed %d\n",
			m.elapsed.Round(time.Millisecond),
			tuiStyles.status(m.status).Render(m.status.String()),
			m.summary.SucceededItemsCount, m.summary.WarningItemsCount, m.summary.FailedItemsCount)
	case m.stopping:
		b.WriteString(tuiStyles.warn.Render("stopping: waiting for the current file to finish") + "\n")
	default:
		b.WriteString(tuiMutedStyle.Render("q/ctrl+c: cancel") + "\n")
	}
	return b.String()
}

// Monitor drives an interactive view of a running job. It implements every
// engine hook and forwards each event to the bubbletea program.
type Monitor struct {
	program *tea.Program
}

// NewMonitor builds the program. interrupt is called once when the user asks
// to stop; it should cancel the job's context.
func NewMonitor(interrupt func(), opts ...tea.ProgramOption) *Monitor {
	return &Monitor{program: tea.NewProgram(newMonitorModel(interrupt), opts...)}
}

// Run blocks until the job completes or the program is killed.
func (mo *Monitor) Run() error {
	_, err := mo.program.Run()
	return err
}

func (mo *Monitor) OnStarted(_ *engine.Job, start time.Time) {
	mo.program.Send(startedMsg{start: start})
}

func (mo *Monitor) OnInitialized(_ *engine.Job, items []*engine.Item, defs []model.OperationDefinition) {
	ops := make([]string, 0, len(defs))
	for _, d := range defs {
		ops = append(ops, d.Name)
	}
	mo.program.Send(initializedMsg{total: len(items), ops: ops})
}

func (mo *Monitor) OnItemProcessed(_ *engine.Job, item *engine.Item) {
	mo.program.Send(itemMsg{title: item.Title, status: item.State().Status()})
}

func (mo *Monitor) OnProgressChanged(_ *engine.Job, fraction float64) {
	mo.program.Send(progressMsg{fraction: fraction})
}

func (mo *Monitor) OnLog(_ *engine.Job, message string) {
	mo.program.Send(logMsg{line: message})
}

func (mo *Monitor) OnCompleted(job *engine.Job, elapsed time.Duration, status model.Status) {
	mo.program.Send(completedMsg{elapsed: elapsed, status: status, summary: job.Summary()})
}

func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
