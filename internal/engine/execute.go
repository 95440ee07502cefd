// Package engine runs batch jobs: a job owns items, an item owns ordered
// operations, and one execution algorithm drives all three levels through
// start, init, work and completion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/model"
)

// Level selects the granularity Execute runs at.
type Level int

const (
	LevelJob Level = iota
	LevelItem
	LevelOperation
)

func (l Level) String() string {
	switch l {
	case LevelJob:
		return "job"
	case LevelItem:
		return "item"
	case LevelOperation:
		return "operation"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Unit is one node of the job tree.
type Unit interface {
	Status() model.Status
	SetStatus(model.Status) error
	ReportError(err error)
	Init(ctx context.Context) error
	DoWork(ctx context.Context) error
	// ComposeStatus resolves the final status when the work left the unit
	// InProgress.
	ComposeStatus() model.Status
}

type StartNotifier interface {
	OnStarted(start time.Time)
}

type InitNotifier interface {
	OnInitialized()
}

type CompletionNotifier interface {
	OnCompleted(elapsed time.Duration)
}

// FailurePolicy lets an item or operation hand a failure back to its caller
// instead of absorbing it.
type FailurePolicy interface {
	Propagate(err error) bool
}

// IsCancellation reports whether err is a cooperative cancellation or an
// expired deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Execute drives u through InProgress to a terminal status.
//
// Items and operations only run from Queued; calling Execute on any other
// status is a no-op. The outcome is written to the unit's state, never
// returned: the error result is nil unless the run was cancelled below job
// level, the unit's FailurePolicy asked for propagation, or the unit is a
// job whose init or work failed.
func Execute(ctx context.Context, level Level, u Unit) error {
	if level != LevelJob && u.Status() != model.StatusQueued {
		return nil
	}
	logger := ctxlog.From(ctx)

	start := time.Now()
	if n, ok := u.(StartNotifier); ok {
		n.OnStarted(start)
	}
	setStatus(logger, level, u, model.StatusInProgress)

	defer func() {
		if n, ok := u.(CompletionNotifier); ok {
			n.OnCompleted(time.Since(start))
		}
	}()

	err := run(ctx, logger, level, u)
	if err == nil && level == LevelJob && ctx.Err() != nil {
		err = ctx.Err()
	}

	switch {
	case err == nil:
		if u.Status() == model.StatusInProgress {
			setStatus(logger, level, u, u.ComposeStatus())
		}
		return nil

	case cancelledBy(ctx, err):
		setStatus(logger, level, u, model.StatusCancelled)
		if level == LevelJob {
			return nil
		}
		return err

	default:
		u.ReportError(err)
		if u.Status() != model.StatusFailed {
			setStatus(logger, level, u, model.StatusFailed)
		}
		if level == LevelJob {
			return err
		}
		if p, ok := u.(FailurePolicy); ok && p.Propagate(err) {
			return err
		}
		return nil
	}
}

// cancelledBy also recognises a custom cause of ctx returned on its own, as a
// worker that hands back context.Cause(ctx) does.
func cancelledBy(ctx context.Context, err error) bool {
	if IsCancellation(err) {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	cause := context.Cause(ctx)
	return cause != nil && errors.Is(err, cause)
}

func run(ctx context.Context, logger *slog.Logger, level Level, u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unit of work panicked",
				slog.String("level", level.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", level, r)
		}
	}()

	if err := u.Init(ctx); err != nil {
		return err
	}
	if n, ok := u.(InitNotifier); ok {
		n.OnInitialized()
	}
	return u.DoWork(ctx)
}

func setStatus(logger *slog.Logger, level Level, u Unit, to model.Status) {
	if err := u.SetStatus(to); err != nil {
		logger.Warn("status update rejected",
			slog.String("level", level.String()),
			slog.String("error", err.Error()),
		)
	}
}
