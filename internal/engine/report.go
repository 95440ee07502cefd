package engine

import (
	"time"

	"batch-runner/internal/model"
)

type Report struct {
	RunID      string                      `json:"run_id"`
	Summary    model.JobSummary            `json:"summary"`
	Operations []model.OperationDefinition `json:"operation_definitions"`
	Items      []ItemReport                `json:"items"`
	Log        []string                    `json:"log"`
}

type ItemReport struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      model.Status      `json:"status"`
	DurationMS  int64             `json:"duration_ms"`
	Issues      []model.Issue     `json:"issues,omitempty"`
	Operations  []OperationReport `json:"operations"`
	Nested      []ItemReport      `json:"nested,omitempty"`
}

type OperationReport struct {
	Name       string        `json:"name"`
	Status     model.Status  `json:"status"`
	DurationMS int64         `json:"duration_ms"`
	Issues     []model.Issue `json:"issues,omitempty"`
	Result     any           `json:"result,omitempty"`
}

// Report snapshots the last run.
func (j *Job) Report() Report {
	items := make([]ItemReport, 0, len(j.items))
	for _, it := range j.items {
		items = append(items, itemReport(it))
	}
	return Report{
		RunID:      j.runID,
		Summary:    j.state.Snapshot(),
		Operations: j.defs,
		Items:      items,
		Log:        j.LogEntries(),
	}
}

func itemReport(it *Item) ItemReport {
	r := ItemReport{
		Title:       it.Title,
		Description: it.Description,
		Status:      it.state.Status(),
		DurationMS:  ms(it.Duration()),
		Issues:      it.state.Issues(),
		Operations:  make([]OperationReport, 0, len(it.operations)),
	}
	for _, op := range it.operations {
		r.Operations = append(r.Operations, OperationReport{
			Name:       op.Definition.Name,
			Status:     op.state.Status(),
			DurationMS: ms(op.Duration()),
			Issues:     op.state.Issues(),
			Result:     op.UserResult(),
		})
	}
	for _, n := range it.Nested() {
		r.Nested = append(r.Nested, itemReport(n))
	}
	return r
}

func ms(d time.Duration) int64 { return d.Milliseconds() }
