package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/model"

	"github.com/google/uuid"
)

// Worker supplies the concrete work of a job.
type Worker interface {
	// Init discovers the items of the run and the operation definitions they
	// share. An error fails the run and is returned from Job.Run.
	Init(ctx context.Context, job *Job) ([]*Item, []model.OperationDefinition, error)
	// Process performs one operation of one item. It may set the operation's
	// status and user result itself; otherwise a nil return means Succeeded.
	Process(ctx context.Context, item *Item, op *Operation) error
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithHooks registers listeners for the job's lifecycle events.
func WithHooks(listeners ...any) Option {
	return func(j *Job) {
		for _, l := range listeners {
			j.hooks.Register(l)
		}
	}
}

// WithContinueOnError controls whether a failed operation lets the rest of
// its item run. The default is true.
func WithContinueOnError(v bool) Option {
	return func(j *Job) { j.continueOnError = v }
}

// WithRunID fixes the ID of the next run instead of generating one.
func WithRunID(id string) Option {
	return func(j *Job) { j.nextRunID = id }
}

// Job is one batch run over an ordered set of items. Run must not be called
// concurrently on the same Job.
type Job struct {
	worker          Worker
	hooks           *Hooks
	logger          *slog.Logger
	continueOnError bool

	nextRunID string
	runID     string
	state     *model.JobState
	items     []*Item
	defs      []model.OperationDefinition

	logMu      sync.Mutex
	logEntries []string
}

func NewJob(worker Worker, opts ...Option) *Job {
	j := &Job{
		worker:          worker,
		hooks:           NewHooks(),
		logger:          slog.Default(),
		continueOnError: true,
		state:           model.NewJobState(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) RunID() string { return j.runID }

func (j *Job) Summary() model.JobSummary { return j.state.Snapshot() }

func (j *Job) Items() []*Item { return j.items }

func (j *Job) OperationDefinitions() []model.OperationDefinition { return j.defs }

func (j *Job) LogEntries() []string {
	j.logMu.Lock()
	defer j.logMu.Unlock()
	return slices.Clone(j.logEntries)
}

// Log appends message to the job log and raises the Log hook.
func (j *Job) Log(message string) {
	j.logMu.Lock()
	j.logEntries = append(j.logEntries, message)
	j.logMu.Unlock()

	j.hooks.emitLog(j, message)
}

// Run executes the whole job. Failures of items and operations are recorded
// on their states; cancellation resolves the job as Cancelled and returns
// nil. Only a failed Init (or a panic in the loop) is returned.
func (j *Job) Run(ctx context.Context) error {
	j.reset()
	logger := j.logger.With(slog.String("run_id", j.runID))
	ctx = ctxlog.Into(ctx, logger)

	if err := Execute(ctx, LevelJob, jobUnit{j: j}); err != nil {
		return fmt.Errorf("run job %s: %w", j.runID, err)
	}
	return nil
}

func (j *Job) reset() {
	j.runID = j.nextRunID
	j.nextRunID = ""
	if j.runID == "" {
		j.runID = uuid.NewString()
	}
	j.state = model.NewJobState()
	j.items = nil
	j.defs = nil
	j.logMu.Lock()
	j.logEntries = nil
	j.logMu.Unlock()
}

func (j *Job) setProgress(fraction float64) {
	if j.state.SetProgress(fraction) {
		j.hooks.emitProgress(j, j.state.Snapshot().Progress)
	}
}

type jobUnit struct {
	j *Job
}

func (u jobUnit) Status() model.Status { return u.j.state.Status() }
func (u jobUnit) SetStatus(to model.Status) error { return u.j.state.SetStatus(to) }

func (u jobUnit) ReportError(err error) {
	u.j.logger.Error("job failed",
		slog.String("run_id", u.j.runID),
		slog.String("error", err.Error()),
	)
	u.j.Log(fmt.Sprintf("Error: %v", err))
}

func (u jobUnit) OnStarted(start time.Time) {
	u.j.state.SetStartTime(start)
	u.j.hooks.emitStarted(u.j, start)
}

func (u jobUnit) Init(ctx context.Context) error {
	items, defs, err := u.j.worker.Init(ctx, u.j)
	if err != nil {
		return err
	}
	for _, it := range items {
		it.attach(u.j)
	}
	u.j.items = items
	u.j.defs = defs
	u.j.state.SetTotalItemsCount(len(items))

	ctxlog.From(ctx).Info("job initialized",
		slog.Int("items", len(items)),
		slog.Int("operation_definitions", len(defs)),
	)
	return nil
}

func (u jobUnit) OnInitialized() {
	u.j.hooks.emitInitialized(u.j, u.j.items, u.j.defs)
}

func (u jobUnit) DoWork(ctx context.Context) error {
	total := len(u.j.items)
	if total == 0 {
		u.j.setProgress(1)
		return nil
	}

	for i, it := range u.j.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		ran := it.state.Status() == model.StatusQueued
		if err := Execute(ctx, LevelItem, itemUnit{it: it}); err != nil {
			return err
		}
		if ran {
			u.j.state.IncrementItemsCount(it.state.Status())
		}
		u.j.setProgress(float64(i+1) / float64(total))
		u.j.hooks.emitItemProcessed(u.j, it)
	}
	return nil
}

func (u jobUnit) ComposeStatus() model.Status {
	children := make([]model.Status, 0, len(u.j.items))
	for _, it := range u.j.items {
		children = append(children, it.state.Status())
	}
	return model.ComposeStatus(children)
}

func (u jobUnit) OnCompleted(elapsed time.Duration) {
	u.j.state.SetDuration(elapsed)
	summary := u.j.state.Snapshot()

	u.j.logger.Info("job completed",
		slog.String("run_id", u.j.runID),
		slog.String("status", summary.Status.String()),
		slog.Duration("duration", elapsed),
		slog.Int("succeeded", summary.SucceededItemsCount),
		slog.Int("warning", summary.WarningItemsCount),
		slog.Int("failed", summary.FailedItemsCount),
	)
	u.j.hooks.emitCompleted(u.j, elapsed, summary.Status)
}
