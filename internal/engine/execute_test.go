package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"batch-runner/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnit struct {
	state     *model.State
	initErr   error
	workErr   error
	propagate bool
	compose   model.Status

	steps    []string
	reported []error
}

func newFakeUnit() *fakeUnit {
	return &fakeUnit{state: model.NewState(), compose: model.StatusSucceeded}
}

func (u *fakeUnit) Status() model.Status { return u.state.Status() }
func (u *fakeUnit) SetStatus(to model.Status) error { return u.state.SetStatus(to) }
func (u *fakeUnit) ComposeStatus() model.Status { return u.compose }

func (u *fakeUnit) ReportError(err error) {
	u.reported = append(u.reported, err)
	u.state.ReportError(err)
}

func (u *fakeUnit) Init(context.Context) error {
	u.steps = append(u.steps, "init")
	return u.initErr
}

func (u *fakeUnit) DoWork(context.Context) error {
	u.steps = append(u.steps, "work")
	return u.workErr
}

func (u *fakeUnit) OnStarted(time.Time) { u.steps = append(u.steps, "started") }
func (u *fakeUnit) OnInitialized() { u.steps = append(u.steps, "initialized") }
func (u *fakeUnit) OnCompleted(time.Duration) { u.steps = append(u.steps, "completed") }
func (u *fakeUnit) Propagate(error) bool { return u.propagate }

func TestExecute_SequencesLifecycle(t *testing.T) {
	u := newFakeUnit()

	require.NoError(t, Execute(context.Background(), LevelOperation, u))
	assert.Equal(t, []string{"started", "init", "initialized", "work", "completed"}, u.steps)
	assert.Equal(t, model.StatusSucceeded, u.Status())
}

func TestExecute_NonQueuedUnitIsNoOp(t *testing.T) {
	for _, level := range []Level{LevelItem, LevelOperation} {
		u := newFakeUnit()
		require.NoError(t, u.SetStatus(model.StatusInProgress))
		require.NoError(t, u.SetStatus(model.StatusSucceeded))

		require.NoError(t, Execute(context.Background(), level, u))
		assert.Empty(t, u.steps, level.String())
		assert.Equal(t, model.StatusSucceeded, u.Status())
	}
}

func TestExecute_SecondCallDoesNotRepeatWork(t *testing.T) {
	u := newFakeUnit()
	require.NoError(t, Execute(context.Background(), LevelItem, u))
	require.NoError(t, Execute(context.Background(), LevelItem, u))

	work := 0
	for _, s := range u.steps {
		if s == "work" {
			work++
		}
	}
	assert.Equal(t, 1, work)
}

func TestExecute_ComposesOnlyWhenStillInProgress(t *testing.T) {
	u := newFakeUnit()
	u.compose = model.StatusWarning

	require.NoError(t, Execute(context.Background(), LevelItem, u))
	assert.Equal(t, model.StatusWarning, u.Status())
}

func TestExecute_FailureHandling(t *testing.T) {
	errBoom := errors.New("boom")

	cases := []struct {
		name      string
		level     Level
		initErr   error
		workErr   error
		propagate bool
		wantErr   bool
	}{
		{name: "operation failure is absorbed", level: LevelOperation, workErr: errBoom},
		{name: "operation failure propagates on request", level: LevelOperation, workErr: errBoom, propagate: true, wantErr: true},
		{name: "item init failure is absorbed", level: LevelItem, initErr: errBoom},
		{name: "job failure is returned", level: LevelJob, workErr: errBoom, wantErr: true},
		{name: "job init failure is returned", level: LevelJob, initErr: errBoom, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newFakeUnit()
			u.initErr = tc.initErr
			u.workErr = tc.workErr
			u.propagate = tc.propagate

			err := Execute(context.Background(), tc.level, u)
			if tc.wantErr {
				require.ErrorIs(t, err, errBoom)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, model.StatusFailed, u.Status())
			assert.Equal(t, []error{errBoom}, u.reported)
			assert.Equal(t, "completed", u.steps[len(u.steps)-1])
		})
	}
}

func TestExecute_CancellationHandling(t *testing.T) {
	cases := []struct {
		name    string
		level   Level
		workErr error
		wantErr bool
	}{
		{name: "operation re-raises", level: LevelOperation, workErr: context.Canceled, wantErr: true},
		{name: "item re-raises deadline", level: LevelItem, workErr: context.DeadlineExceeded, wantErr: true},
		{name: "wrapped cancellation", level: LevelOperation, workErr: errors.Join(errors.New("killed"), context.Canceled), wantErr: true},
		{name: "job swallows", level: LevelJob, workErr: context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newFakeUnit()
			u.workErr = tc.workErr

			err := Execute(context.Background(), tc.level, u)
			if tc.wantErr {
				assert.True(t, IsCancellation(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, model.StatusCancelled, u.Status())
			assert.Empty(t, u.reported)
		})
	}
}

func TestExecute_JobHasNoQueuedGate(t *testing.T) {
	u := newFakeUnit()
	require.NoError(t, u.SetStatus(model.StatusInProgress))

	require.NoError(t, Execute(context.Background(), LevelJob, u))
	assert.Contains(t, u.steps, "work")
	assert.Equal(t, model.StatusSucceeded, u.Status())
}

func TestExecute_JobCancelledDuringSuccessfulWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := newFakeUnit()
	require.NoError(t, Execute(ctx, LevelJob, u))
	assert.Equal(t, model.StatusCancelled, u.Status())
}

func TestExecute_CancelCauseIsCancellation(t *testing.T) {
	errInterrupt := errors.New("interrupt signal received")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errInterrupt)

	for _, level := range []Level{LevelOperation, LevelItem} {
		u := newFakeUnit()
		u.workErr = errInterrupt

		err := Execute(ctx, level, u)
		require.ErrorIs(t, err, errInterrupt, level.String())
		assert.Equal(t, model.StatusCancelled, u.Status(), level.String())
		assert.Empty(t, u.reported, level.String())
		assert.Empty(t, u.state.Issues(), level.String())
	}
}

func TestExecute_CauseMatchOnlyCountsOnceDone(t *testing.T) {
	errInterrupt := errors.New("interrupt signal received")
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	u := newFakeUnit()
	u.workErr = errInterrupt

	require.NoError(t, Execute(ctx, LevelOperation, u))
	assert.Equal(t, model.StatusFailed, u.Status())
	assert.Equal(t, []error{errInterrupt}, u.reported)
}
