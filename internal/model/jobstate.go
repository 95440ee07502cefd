package model

import (
	"sync"
	"time"
)

// JobSummary is a point-in-time copy of a job's aggregate state.
type JobSummary struct {
	StartTime           time.Time     `json:"start_time"`
	Duration            time.Duration `json:"duration"`
	Status              Status        `json:"status"`
	TotalItemsCount     int           `json:"total_items_count"`
	SucceededItemsCount int           `json:"succeeded_items_count"`
	WarningItemsCount   int           `json:"warning_items_count"`
	FailedItemsCount    int           `json:"failed_items_count"`
	Progress            float64       `json:"progress"`
}

// Processed is the number of items that reached a counted terminal status.
func (s JobSummary) Processed() int {
	return s.SucceededItemsCount + s.WarningItemsCount + s.FailedItemsCount
}

// JobState is the aggregate state of one job run. It is written by the job
// loop and may be read concurrently by observers.
type JobState struct {
	mu sync.RWMutex
	s  JobSummary
}

func NewJobState() *JobState {
	return &JobState{s: JobSummary{Status: StatusQueued}}
}

func (j *JobState) Snapshot() JobSummary {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.s
}

func (j *JobState) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.s.Status
}

func (j *JobState) SetStatus(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !CanTransition(j.s.Status, to) {
		return transitionError(j.s.Status, to)
	}
	j.s.Status = to
	return nil
}

func (j *JobState) SetStartTime(t time.Time) {
	j.mu.Lock()
	j.s.StartTime = t
	j.mu.Unlock()
}

func (j *JobState) SetDuration(d time.Duration) {
	j.mu.Lock()
	j.s.Duration = d
	j.mu.Unlock()
}

func (j *JobState) SetTotalItemsCount(n int) {
	j.mu.Lock()
	j.s.TotalItemsCount = n
	j.mu.Unlock()
}

// SetProgress stores fraction clamped to [0,1]. It never moves backwards and
// reports whether the value changed.
func (j *JobState) SetProgress(fraction float64) bool {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if fraction <= j.s.Progress {
		return false
	}
	j.s.Progress = fraction
	return true
}

// IncrementItemsCount bumps the counter matching an item's final status.
// Statuses other than Succeeded, Warning and Failed are not counted.
func (j *JobState) IncrementItemsCount(status Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch status {
	case StatusSucceeded:
		j.s.SucceededItemsCount++
	case StatusWarning:
		j.s.WarningItemsCount++
	case StatusFailed:
		j.s.FailedItemsCount++
	}
}
