package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"batch-runner/internal/engine"
	"batch-runner/internal/model"
	"batch-runner/internal/runstore"
)

// installFakeConverter puts a "fake-converter" script on PATH. Sources whose
// name contains "broken" fail, "hang" sleeps until killed.
func installFakeConverter(t *testing.T) {
	t.Helper()
	fakeBin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	script := `#!/usr/bin/env bash
set -euo pipefail
case "$1" in
  *broken*)
    echo "cannot open $1" >&2
    exit 2
    ;;
  *hang*)
    exec sleep 30
    ;;
esac
cp "$1" "$2"
echo "LOG:Exported $(basename "$2")"
`
	if err := os.WriteFile(filepath.Join(fakeBin, "fake-converter"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
}

func writeModels(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("model"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestExportCommandConvertsAndRecordsRun(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	out := filepath.Join(tmp, "out")
	reports := filepath.Join(tmp, "reports")
	reportPath := filepath.Join(tmp, "last.json")
	writeModels(t, in, "a.sldprt", "b.sldprt")

	stdout, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", out,
		"--format", "pdf", "--format", "step",
		"--converter", "fake-converter",
		"--report", reportPath,
		"--reports-dir", reports,
	)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	for _, name := range []string{"a.pdf", "a.step", "b.pdf", "b.step"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected output %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, runstore.LockDirName)); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, stat err=%v", err)
	}
	for _, want := range []string{"Processing 2 file(s)", "Exported a.pdf", "Progress: 100.00%", "Processed: 2"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}

	var report engine.Report
	if err := runstore.ReadJSON(reportPath, &report); err != nil {
		t.Fatal(err)
	}
	if report.Summary.Status != model.StatusSucceeded || report.Summary.SucceededItemsCount != 2 {
		t.Fatalf("unexpected report summary: %+v", report.Summary)
	}
	if len(report.Items) != 2 || len(report.Items[0].Operations) != 2 {
		t.Fatalf("unexpected report items: %+v", report.Items)
	}

	kept, err := runstore.ListReports(reports)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 || !strings.Contains(kept[0], report.RunID) {
		t.Fatalf("expected one kept report for run %s, got %v", report.RunID, kept)
	}

	history, _, err := runCLI(t, "history", "--reports-dir", reports)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(history, "succeeded") || !strings.Contains(history, "2/2 ok") {
		t.Fatalf("unexpected history output:\n%s", history)
	}
}

func TestExportCommandPartialFailureIsWarning(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	writeModels(t, in, "good.sldprt", "broken.sldprt")

	stdout, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--format", "pdf",
		"--converter", "fake-converter",
	)
	if err != nil {
		t.Fatalf("a partly failed run must not fail the command: %v", err)
	}
	if !strings.Contains(stdout, "Failed: 1") || !strings.Contains(stdout, ": warning") {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Join(in, "good.pdf")); err != nil {
		t.Fatalf("expected output next to the source: %v", err)
	}
}

func TestExportCommandAllFailedReturnsError(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	writeModels(t, in, "broken.sldprt")

	_, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--format", "pdf",
		"--converter", "fake-converter",
	)
	if !errors.Is(err, errExportFailed) {
		t.Fatalf("expected errExportFailed, got %v", err)
	}
}

func TestExportCommandInterruptIsCancelled(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	reportPath := filepath.Join(tmp, "last.json")
	writeModels(t, in, "a-hang.sldprt", "b.sldprt")

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	go func() {
		time.Sleep(500 * time.Millisecond)
		cancel(errors.New("interrupt signal received"))
	}()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", filepath.Join(tmp, "out"),
		"--format", "pdf",
		"--converter", "fake-converter",
		"--report", reportPath,
	}, &stdout, &stderr)
	if !errors.Is(err, errExportCancelled) {
		t.Fatalf("expected errExportCancelled, got %v", err)
	}

	var report engine.Report
	if err := runstore.ReadJSON(reportPath, &report); err != nil {
		t.Fatal(err)
	}
	if report.Summary.Status != model.StatusCancelled || report.Summary.FailedItemsCount != 0 {
		t.Fatalf("unexpected report summary: %+v", report.Summary)
	}
	if got := report.Items[0].Status; got != model.StatusCancelled {
		t.Fatalf("interrupted item must be cancelled, got %s", got)
	}
}

func TestExportCommandJSONReport(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	writeModels(t, in, "a.sldprt")

	stdout, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", filepath.Join(tmp, "out"),
		"--format", "pdf",
		"--converter", "fake-converter",
		"--json",
	)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var report engine.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout)
	}
	if report.RunID == "" || report.Summary.TotalItemsCount != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Log) == 0 || report.Log[0] != "Exporting Started" {
		t.Fatalf("unexpected report log: %v", report.Log)
	}
}

func TestExportCommandJobFileAndFlags(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	out := filepath.Join(tmp, "out")
	writeModels(t, in, "a.sldprt", "notes.txt")

	jobFile := filepath.Join(tmp, "job.hcl")
	content := `export {
  inputs    = ["` + in + `"]
  filter    = "*.sldprt"
  formats   = ["pdf"]
  converter = "missing-converter"
}
`
	if err := os.WriteFile(jobFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--job-file", jobFile,
		"--output-dir", out,
		"--converter", "fake-converter",
	)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "a.pdf")); err != nil {
		t.Fatalf("expected a.pdf: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "notes.pdf")); !os.IsNotExist(err) {
		t.Fatalf("filter from the job file must apply, stat err=%v", err)
	}
}

func TestExportCommandValidationErrorsArePlain(t *testing.T) {
	tmp := t.TempDir()

	_, _, err := runCLI(t, "export", "--env", filepath.Join(tmp, "absent.env"), "--format", "pdf", "--converter", "x")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if err.Error() != "inputs: specify input file or directory" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	_, _, err = runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", tmp,
		"--format", "pdf",
		"--converter", "definitely-not-installed-converter",
	)
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "converter" {
		t.Fatalf("expected converter validation error, got %v", err)
	}
	if strings.Contains(err.Error(), "run job") {
		t.Fatalf("validation error must not carry wrapping: %q", err.Error())
	}
}

func TestExportCommandRefusesLockedOutputDir(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	out := filepath.Join(tmp, "out")
	writeModels(t, in, "a.sldprt")

	lock, err := runstore.AcquireDirLock(out, "other-run")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lock.Release() }()

	_, _, err = runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", out,
		"--format", "pdf",
		"--converter", "fake-converter",
	)
	if !errors.Is(err, runstore.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "a.pdf")); !os.IsNotExist(err) {
		t.Fatalf("nothing may be written into a locked directory, stat err=%v", err)
	}
}

func TestHistoryLatestShowsItemDetail(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	reports := filepath.Join(tmp, "reports")
	writeModels(t, in, "good.sldprt", "broken.sldprt")

	_, _, err := runCLI(t, "export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", filepath.Join(tmp, "out"),
		"--format", "pdf",
		"--converter", "fake-converter",
		"--reports-dir", reports,
	)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	stdout, _, err := runCLI(t, "history", "--reports-dir", reports, "--latest")
	if err != nil {
		t.Fatalf("history --latest failed: %v", err)
	}
	for _, want := range []string{"warning", "1/2 ok", "broken.sldprt", "good.sldprt", "cannot open"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}

	_, _, err = runCLI(t, "history", "--reports-dir", filepath.Join(tmp, "none"), "--latest")
	if err == nil || !strings.Contains(err.Error(), "no reports found") {
		t.Fatalf("expected no reports error, got %v", err)
	}
}

func TestHistoryEmptyAndVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "history", "--reports-dir", filepath.Join(t.TempDir(), "none"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "no runs recorded") {
		t.Fatalf("unexpected history output: %q", stdout)
	}

	stdout, _, err = runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "batch-runner "+Version {
		t.Fatalf("unexpected version output: %q", stdout)
	}
}

func TestExportCommandLogSettings(t *testing.T) {
	installFakeConverter(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "models")
	writeModels(t, in, "a.sldprt")
	base := []string{"export",
		"--env", filepath.Join(tmp, "absent.env"),
		"--input", in,
		"--output-dir", filepath.Join(tmp, "out"),
		"--format", "pdf",
		"--converter", "fake-converter",
	}

	_, stderr, err := runCLI(t, append(base, "--log-level", "debug", "--log-format", "json")...)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(stderr, `"level":"DEBUG"`) || !strings.Contains(stderr, `"item":"a.sldprt"`) {
		t.Fatalf("expected json debug lines on stderr:\n%s", stderr)
	}

	_, stderr, err = runCLI(t, base...)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.Contains(stderr, "level=DEBUG") || strings.Contains(stderr, "level=INFO") {
		t.Fatalf("default level must hide debug and info lines:\n%s", stderr)
	}

	for _, bad := range [][]string{{"--log-level", "loud"}, {"--log-format", "xml"}} {
		_, _, err = runCLI(t, append(base, bad...)...)
		var verr *model.ValidationError
		if !errors.As(err, &verr) || "--"+verr.Field != bad[0] {
			t.Fatalf("expected %s validation error, got %v", bad[0], err)
		}
	}
}
