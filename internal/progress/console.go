// Package progress renders job lifecycle events for a human: a line based
// console writer and an interactive terminal monitor.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"batch-runner/internal/engine"
	"batch-runner/internal/model"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	title   lipgloss.Style
	percent lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		fail:    r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("245")),
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		percent: r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (s styles) status(st model.Status) lipgloss.Style {
	switch st {
	case model.StatusSucceeded:
		return s.ok
	case model.StatusWarning:
		return s.warn
	case model.StatusFailed, model.StatusCancelled:
		return s.fail
	default:
		return s.muted
	}
}

// Console writes one line per job event. Register it with engine.WithHooks.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
	now    func() time.Time
	start  time.Time
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:      w,
		styles: newStyles(lipgloss.NewRenderer(w)),
		now:    time.Now,
	}
}

func (c *Console) OnStarted(_ *engine.Job, start time.Time) {
	c.mu.Lock()
	c.start = start
	c.mu.Unlock()
	c.printf("%s %s\n", c.styles.title.Render("Started:"), start.Format(time.DateTime))
}

func (c *Console) OnInitialized(_ *engine.Job, items []*engine.Item, defs []model.OperationDefinition) {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	c.printf("Processing %d file(s)", len(items))
	if len(names) > 0 {
		c.printf(" %s", c.styles.muted.Render("["+strings.Join(names, ", ")+"]"))
	}
	c.printf("\n")
}

func (c *Console) OnItemProcessed(_ *engine.Job, item *engine.Item) {
	st := item.State().Status()
	c.printf("Result: %s %s\n", item.Title, c.styles.status(st).Render(st.String()))
	for _, op := range item.Operations() {
		for _, issue := range op.State().Issues() {
			c.printf("  %s %s: %s\n", c.styles.muted.Render(op.Definition.Name), issue.Type, issue.Message)
		}
	}
	for _, issue := range item.State().Issues() {
		c.printf("  %s: %s\n", issue.Type, issue.Message)
	}
}

func (c *Console) OnProgressChanged(_ *engine.Job, fraction float64) {
	c.mu.Lock()
	elapsed := c.now().Sub(c.start)
	c.mu.Unlock()

	line := fmt.Sprintf("Progress: %.2f%%", fraction*100)
	if eta := estimateETA(elapsed, fraction); eta != "" && fraction < 1 {
		line += " | eta ~ " + eta
	}
	c.printf("%s\n", c.styles.percent.Render(line))
}

func (c *Console) OnLog(_ *engine.Job, message string) {
	c.printf("%s\n", message)
}

func (c *Console) OnCompleted(job *engine.Job, elapsed time.Duration, status model.Status) {
	s := job.Summary()
	c.printf("Operation completed: %s: %s\n", elapsed.Round(time.Millisecond), c.styles.status(status).Render(status.String()))
	c.printf("Processed: %d\n", s.SucceededItemsCount)
	c.printf("Warning: %d\n", s.WarningItemsCount)
	c.printf("Failed: %d\n", s.FailedItemsCount)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format, args...)
}
