package engine

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/model"
)

// Operation is the smallest unit of work: one definition applied to one item.
type Operation struct {
	Definition model.OperationDefinition
	// Data is owned by the worker that built the operation.
	Data any

	state    *model.State
	duration atomic.Int64
	item     *Item

	mu                  sync.RWMutex
	userResult          any
	userResultListeners []func(any)
}

func NewOperation(def model.OperationDefinition, data any) *Operation {
	return &Operation{
		Definition: def,
		Data:       data,
		state:      model.NewState(),
	}
}

func (op *Operation) State() *model.State { return op.state }

// Item returns the owning item once the job has been initialized.
func (op *Operation) Item() *Item { return op.item }

func (op *Operation) Duration() time.Duration {
	return time.Duration(op.duration.Load())
}

func (op *Operation) UserResult() any {
	op.mu.RLock()
	defer op.mu.RUnlock()
	return op.userResult
}

// SetUserResult stores the result of the work and notifies UserResultChanged
// listeners. It does not touch the status.
func (op *Operation) SetUserResult(v any) {
	op.mu.Lock()
	op.userResult = v
	listeners := slices.Clone(op.userResultListeners)
	op.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

func (op *Operation) OnUserResultChanged(fn func(any)) {
	op.mu.Lock()
	op.userResultListeners = append(op.userResultListeners, fn)
	op.mu.Unlock()
}

type operationUnit struct {
	op *Operation
}

func (u operationUnit) Status() model.Status { return u.op.state.Status() }
func (u operationUnit) SetStatus(to model.Status) error { return u.op.state.SetStatus(to) }
func (u operationUnit) ComposeStatus() model.Status { return model.StatusSucceeded }
func (u operationUnit) Init(context.Context) error { return nil }
func (u operationUnit) OnCompleted(elapsed time.Duration) { u.op.duration.Store(int64(elapsed)) }

func (u operationUnit) ReportError(err error) {
	u.op.state.ReportError(err)
}

func (u operationUnit) DoWork(ctx context.Context) error {
	job := u.op.item.job
	ctxlog.From(ctx).Debug("operation started")
	return job.worker.Process(ctx, u.op.item, u.op)
}

// Propagate stops the owning item on the first failure unless the job
// continues on error.
func (u operationUnit) Propagate(error) bool {
	return !u.op.item.job.continueOnError
}
