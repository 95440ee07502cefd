package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/model"
)

// Item is one entry of a batch, usually one input file.
type Item struct {
	Title       string
	Description string
	// Data is owned by the worker that built the item.
	Data any

	operations []*Operation
	nested     []*Item
	state      *model.State
	duration   atomic.Int64
	job        *Job
}

func NewItem(title, description string, ops []*Operation, nested ...*Item) *Item {
	return &Item{
		Title:       title,
		Description: description,
		operations:  ops,
		nested:      nested,
		state:       model.NewState(),
	}
}

func (it *Item) State() *model.State { return it.state }

func (it *Item) Operations() []*Operation { return it.operations }

func (it *Item) Nested() []*Item { return it.nested }

func (it *Item) Duration() time.Duration {
	return time.Duration(it.duration.Load())
}

// attach wires the ownership back-references once the job knows its items.
func (it *Item) attach(job *Job) {
	it.job = job
	for _, op := range it.operations {
		op.item = it
	}
	for _, n := range it.nested {
		n.attach(job)
	}
}

type itemUnit struct {
	it *Item
}

func (u itemUnit) Status() model.Status { return u.it.state.Status() }
func (u itemUnit) SetStatus(to model.Status) error { return u.it.state.SetStatus(to) }
func (u itemUnit) ReportError(err error) { u.it.state.ReportError(err) }
func (u itemUnit) Init(context.Context) error { return nil }
func (u itemUnit) OnCompleted(elapsed time.Duration) { u.it.duration.Store(int64(elapsed)) }

func (u itemUnit) DoWork(ctx context.Context) error {
	ctx = ctxlog.With(ctx, slog.String("item", u.it.Title))

	for _, op := range u.it.operations {
		if err := ctx.Err(); err != nil {
			return err
		}
		opCtx := ctxlog.With(ctx, slog.String("operation", op.Definition.Name))
		if err := Execute(opCtx, LevelOperation, operationUnit{op: op}); err != nil {
			return err
		}
	}
	for _, n := range u.it.nested {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := Execute(ctx, LevelItem, itemUnit{it: n}); err != nil {
			return err
		}
	}
	return nil
}

func (u itemUnit) ComposeStatus() model.Status {
	children := make([]model.Status, 0, len(u.it.operations)+len(u.it.nested))
	for _, op := range u.it.operations {
		children = append(children, op.state.Status())
	}
	for _, n := range u.it.nested {
		children = append(children, n.state.Status())
	}
	return model.ComposeStatus(children)
}
