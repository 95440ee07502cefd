package model

import "strings"

type IssueType string

const (
	IssueInformation IssueType = "information"
	IssueWarning     IssueType = "warning"
	IssueError       IssueType = "error"
)

// Issue is a diagnostic attached to an item or operation state.
type Issue struct {
	Type    IssueType `json:"type"`
	Message string    `json:"message"`
}

func ErrorIssue(err error) Issue {
	return Issue{Type: IssueError, Message: err.Error()}
}

// OperationDefinition describes one class of operation applied to every item,
// e.g. one export format.
type OperationDefinition struct {
	Name      string `json:"name"`
	Icon      any    `json:"-"`
	Extension string `json:"extension,omitempty"`
}

// ValidationError is a recoverable configuration or input problem whose
// message is meant for the user as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if strings.TrimSpace(e.Field) == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
