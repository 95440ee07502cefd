package model

import (
	"slices"
	"sync"
)

type StatusListener func(status Status)

type IssuesListener func(issues []Issue)

// State holds the status and issues of one item or operation. Only the owner
// mutates it; observers subscribe and read.
type State struct {
	mu     sync.RWMutex
	status Status
	issues []Issue

	statusListeners []StatusListener
	issueListeners  []IssuesListener
}

func NewState() *State {
	return &State{status: StatusQueued}
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Issues returns a copy of the current issue set.
func (s *State) Issues() []Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.issues)
}

// SetStatus applies a transition allowed by the status table and notifies
// listeners. Rejected transitions leave the state untouched.
func (s *State) SetStatus(to Status) error {
	s.mu.Lock()
	from := s.status
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return transitionError(from, to)
	}
	s.status = to
	listeners := slices.Clone(s.statusListeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(to)
	}
	return nil
}

// SetIssues replaces the whole issue set.
func (s *State) SetIssues(issues []Issue) {
	s.mu.Lock()
	s.issues = slices.Clone(issues)
	current := slices.Clone(s.issues)
	listeners := slices.Clone(s.issueListeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
}

// ReportError replaces the issues with a single error issue.
func (s *State) ReportError(err error) {
	if err == nil {
		return
	}
	s.SetIssues([]Issue{ErrorIssue(err)})
}

func (s *State) OnStatusChanged(fn StatusListener) {
	s.mu.Lock()
	s.statusListeners = append(s.statusListeners, fn)
	s.mu.Unlock()
}

func (s *State) OnIssuesChanged(fn IssuesListener) {
	s.mu.Lock()
	s.issueListeners = append(s.issueListeners, fn)
	s.mu.Unlock()
}
