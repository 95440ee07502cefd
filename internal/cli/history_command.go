package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"batch-runner/internal/engine"
	"batch-runner/internal/model"
	"batch-runner/internal/runstore"

	"github.com/urfave/cli/v3"
)

type historyRow struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Warning   int       `json:"warning"`
	Failed    int       `json:"failed"`
	Report    string    `json:"report"`
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list the run reports kept in a reports directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reports-dir", Usage: "directory passed to export --reports-dir", Required: true},
			&cli.IntFlag{Name: "limit", Usage: "show only the most recent N runs (0 = all)"},
			&cli.BoolFlag{Name: "latest", Usage: "show the items and operations of the most recent run"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: historyAction,
	}
}

func historyAction(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("reports-dir")
	if cmd.Bool("latest") {
		return showLatest(cmd, dir)
	}
	paths, err := runstore.ListReports(dir)
	if err != nil {
		return err
	}
	if limit := int(cmd.Int("limit")); limit > 0 && len(paths) > limit {
		paths = paths[len(paths)-limit:]
	}

	rows := make([]historyRow, 0, len(paths))
	for _, path := range paths {
		var r engine.Report
		if err := runstore.ReadJSON(path, &r); err != nil {
			return err
		}
		rows = append(rows, historyRow{
			RunID:     r.RunID,
			StartTime: r.Summary.StartTime,
			Status:    r.Summary.Status.String(),
			Total:     r.Summary.TotalItemsCount,
			Succeeded: r.Summary.SucceededItemsCount,
			Warning:   r.Summary.WarningItemsCount,
			Failed:    r.Summary.FailedItemsCount,
			Report:    path,
		})
	}

	out := cmd.Root().Writer
	if cmd.Bool("json") {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(out, "no runs recorded in %s\n", dir)
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(out, "%s  %-10s  %d/%d ok, %d warning, %d failed  %s\n",
			r.StartTime.Local().Format(time.DateTime), r.Status,
			r.Succeeded, r.Total, r.Warning, r.Failed, filepath.Base(r.Report))
	}
	return nil
}

func showLatest(cmd *cli.Command, dir string) error {
	path, err := runstore.LatestReport(dir)
	if err != nil {
		return err
	}
	var r engine.Report
	if err := runstore.ReadJSON(path, &r); err != nil {
		return err
	}

	out := cmd.Root().Writer
	if cmd.Bool("json") {
		return printJSON(out, r)
	}
	s := r.Summary
	fmt.Fprintf(out, "run %s  %s  %d/%d ok, %d warning, %d failed\n",
		r.RunID, s.Status, s.SucceededItemsCount, s.TotalItemsCount, s.WarningItemsCount, s.FailedItemsCount)
	for _, it := range r.Items {
		writeItemReport(out, it, "  ")
	}
	return nil
}

func writeItemReport(w io.Writer, it engine.ItemReport, indent string) {
	fmt.Fprintf(w, "%s%-10s  %s\n", indent, it.Status, it.Title)
	writeIssues(w, it.Issues, indent+"    ")
	for _, op := range it.Operations {
		fmt.Fprintf(w, "%s    %-10s  %s\n", indent, op.Status, op.Name)
		writeIssues(w, op.Issues, indent+"      ")
	}
	for _, n := range it.Nested {
		writeItemReport(w, n, indent+"    ")
	}
}

func writeIssues(w io.Writer, issues []model.Issue, indent string) {
	for _, is := range issues {
		fmt.Fprintf(w, "%s%s: %s\n", indent, is.Type, is.Message)
	}
}
