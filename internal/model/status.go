package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state shared by jobs, items and operations.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusWarning    Status = "warning"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusQueued:     true,
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusSucceeded:  true,
		StatusWarning:    true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusSucceeded: {
		StatusSucceeded: true,
		StatusFailed:    true, // work reported success, then returned an error
		StatusCancelled: true,
	},
	StatusWarning: {
		StatusWarning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusCancelled: {
		StatusCancelled: true,
	},
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func (s Status) String() string {
	return string(s)
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
}

// ComposeStatus folds child statuses into a parent status. All succeeded
// resolves to Succeeded, any succeeded to Warning, anything else to Failed.
// A mix of Succeeded and Warning children therefore reads the same as a mix
// of Succeeded and Failed ones.
func ComposeStatus(children []Status) Status {
	allSucceeded := true
	anySucceeded := false
	for _, s := range children {
		if s == StatusSucceeded {
			anySucceeded = true
		} else {
			allSucceeded = false
		}
	}
	switch {
	case allSucceeded:
		return StatusSucceeded
	case anySucceeded:
		return StatusWarning
	default:
		return StatusFailed
	}
}
