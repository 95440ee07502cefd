package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"batch-runner/internal/config"
	"batch-runner/internal/ctxlog"
	"batch-runner/internal/engine"
	"batch-runner/internal/export"
	"batch-runner/internal/model"
	"batch-runner/internal/procrun"
	"batch-runner/internal/progress"
	"batch-runner/internal/runstore"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

var (
	errExportFailed    = errors.New("export failed")
	errExportCancelled = errors.New("export cancelled")
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "convert every matching input file into each output format",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file or directory (repeatable)"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "output directory (default: next to each source file)"},
			&cli.StringFlag{Name: "filter", Usage: "file name pattern applied inside input directories", Value: export.DefaultFilter},
			&cli.StringSliceFlag{Name: "format", Aliases: []string{"f"}, Usage: "output format extension, e.g. pdf or .step (repeatable)"},
			&cli.BoolFlag{Name: "continue-on-error", Usage: "keep converting the remaining formats of a file after a failure", Value: true},
			&cli.IntFlag{Name: "timeout", Usage: "per conversion timeout in seconds (0 = none)"},
			&cli.StringFlag{Name: "converter", Usage: "converter executable (name on PATH or path)"},
			&cli.StringFlag{Name: "converter-version", Usage: "optional version argument passed to the converter"},
			&cli.StringFlag{Name: "log-tag", Usage: "prefix of converter stdout lines forwarded to the job log", Value: procrun.DefaultLogTag},
			&cli.StringFlag{Name: "job-file", Usage: "HCL job file with an export block"},
			&cli.StringFlag{Name: "env", Usage: "environment file path", Value: ".env"},
			&cli.StringFlag{Name: "report", Usage: "write the run report as JSON to this path"},
			&cli.StringFlag{Name: "reports-dir", Usage: "also keep a timestamped copy of the run report in this directory"},
			&cli.BoolFlag{Name: "tui", Usage: "show an interactive progress monitor"},
			&cli.BoolFlag{Name: "json", Usage: "print the run report as JSON instead of progress lines"},
			&cli.BoolFlag{Name: "raw-output", Usage: "echo untagged converter output to stderr"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error", Value: "warn"},
			&cli.StringFlag{Name: "log-format", Usage: "text|json", Value: "text"},
		},
		Action: exportAction,
	}
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	stdout := cmd.Root().Writer
	stderr := cmd.Root().ErrWriter

	logger, err := runLogger(cmd, stderr)
	if err != nil {
		return err
	}
	ctx = ctxlog.Into(ctx, logger)

	useTUI := cmd.Bool("tui")
	if useTUI && cmd.Bool("json") {
		return errors.New("--tui and --json cannot be combined")
	}
	if useTUI && !stdinIsTTY() {
		return errors.New("--tui requires an interactive terminal (TTY)")
	}

	cfg, err := config.Load(ctx, config.Sources{
		EnvFile: cmd.String("env"),
		JobFile: cmd.String("job-file"),
		Flags:   flagLayer(cmd),
	})
	if err != nil {
		return userFacing(err)
	}

	opts := cfg.Options()
	runID := uuid.NewString()

	if dir := lockTarget(opts); dir != "" {
		lock, err := runstore.AcquireDirLock(dir, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("release lock failed", slog.String("dir", dir), slog.String("error", err.Error()))
			}
		}()
	}

	registry := procrun.NewRegistry()
	defer func() {
		n, err := registry.KillAll()
		if n > 0 || err != nil {
			logger.Warn("killed leftover converter processes", slog.Int("count", n), slog.Any("error", err))
		}
	}()

	exporter := export.New(opts)
	exporter.Registry = registry
	if cmd.Bool("raw-output") {
		exporter.Raw = stderr
	}

	jobOpts := []engine.Option{engine.WithLogger(logger), engine.WithRunID(runID)}
	var (
		monitor   *progress.Monitor
		monitorCh chan error
	)
	switch {
	case cmd.Bool("json"):
	case useTUI:
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ctx = runCtx
		monitor = progress.NewMonitor(cancel, tea.WithOutput(stdout))
		monitorCh = make(chan error, 1)
		go func() { monitorCh <- monitor.Run() }()
		jobOpts = append(jobOpts, engine.WithHooks(monitor))
	default:
		jobOpts = append(jobOpts, engine.WithHooks(progress.NewConsole(stdout)))
	}

	job := exporter.NewJob(jobOpts...)
	runErr := job.Run(ctx)

	if monitor != nil {
		if err := <-monitorCh; err != nil {
			logger.Warn("progress monitor stopped", slog.String("error", err.Error()))
		}
	}

	report := job.Report()
	if err := writeReports(cmd, report); err != nil {
		return err
	}
	if cmd.Bool("json") {
		if err := printJSON(stdout, report); err != nil {
			return err
		}
	}

	if runErr != nil {
		return userFacing(runErr)
	}
	switch report.Summary.Status {
	case model.StatusFailed:
		return errExportFailed
	case model.StatusCancelled:
		return errExportCancelled
	}
	return nil
}

// runLogger builds the run's own logger from --log-level and --log-format.
// slog.Default is left untouched.
func runLogger(cmd *cli.Command, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return nil, model.NewValidationError("log-level", "expected debug, info, warn or error")
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cmd.String("log-format") {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, model.NewValidationError("log-format", "expected text or json")
}

// flagLayer keeps only the flags given on the command line so that their
// defaults do not shadow the env and job file layers.
func flagLayer(cmd *cli.Command) config.Partial {
	var p config.Partial
	if cmd.IsSet("input") {
		p.Inputs = cmd.StringSlice("input")
	}
	if cmd.IsSet("format") {
		p.Formats = cmd.StringSlice("format")
	}
	setString := func(name string, dst **string) {
		if cmd.IsSet(name) {
			v := cmd.String(name)
			*dst = &v
		}
	}
	setString("output-dir", &p.OutputDir)
	setString("filter", &p.Filter)
	setString("converter", &p.Converter)
	setString("converter-version", &p.Version)
	setString("log-tag", &p.LogTag)
	if cmd.IsSet("continue-on-error") {
		v := cmd.Bool("continue-on-error")
		p.ContinueOnError = &v
	}
	if cmd.IsSet("timeout") {
		v := int(cmd.Int("timeout"))
		p.Timeout = &v
	}
	return p
}

// lockTarget is the directory outputs are written to: the output directory,
// or the first input's directory when outputs go next to their sources.
func lockTarget(opts export.Options) string {
	if strings.TrimSpace(opts.OutputDir) != "" {
		return opts.OutputDir
	}
	if len(opts.Inputs) == 0 {
		return ""
	}
	info, err := os.Stat(opts.Inputs[0])
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return opts.Inputs[0]
	}
	return filepath.Dir(opts.Inputs[0])
}

func writeReports(cmd *cli.Command, report engine.Report) error {
	if path := cmd.String("report"); path != "" {
		if err := runstore.WriteJSON(path, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if dir := cmd.String("reports-dir"); dir != "" {
		path := runstore.ReportPath(dir, report.Summary.StartTime, report.RunID)
		if err := runstore.WriteJSON(path, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
