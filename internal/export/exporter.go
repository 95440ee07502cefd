// Package export is the export job: one item per input file, one operation
// per target format, each operation run by an external converter process.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"batch-runner/internal/ctxlog"
	"batch-runner/internal/engine"
	"batch-runner/internal/model"
	"batch-runner/internal/procrun"
	"batch-runner/internal/runstore"
)

// Exporter implements engine.Worker.
type Exporter struct {
	opts Options
	// Registry receives every spawned converter process.
	Registry procrun.Registrar
	// Raw receives untagged converter output.
	Raw io.Writer

	converter string
	job       *engine.Job
}

func New(opts Options) *Exporter {
	return &Exporter{opts: opts}
}

func (e *Exporter) Options() Options { return e.opts }

// NewJob builds a job driven by e. The continue-on-error policy comes from
// the export options.
func (e *Exporter) NewJob(opts ...engine.Option) *engine.Job {
	all := append([]engine.Option{engine.WithContinueOnError(e.opts.ContinueOnError)}, opts...)
	return engine.NewJob(e, all...)
}

func (e *Exporter) Init(ctx context.Context, job *engine.Job) ([]*engine.Item, []model.OperationDefinition, error) {
	e.job = job
	job.Log("Exporting Started")

	converter, err := resolveConverter(e.opts.Converter)
	if err != nil {
		return nil, nil, err
	}
	e.converter = converter

	if e.opts.OutputDir != "" {
		if err := runstore.Mkdir(e.opts.OutputDir); err != nil {
			return nil, nil, err
		}
	}

	defs, err := formatDefinitions(e.opts.Formats)
	if err != nil {
		return nil, nil, err
	}
	files, err := collectFiles(e.opts.Inputs, e.opts.Filter)
	if err != nil {
		return nil, nil, err
	}

	items := make([]*engine.Item, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ops := make([]*engine.Operation, 0, len(defs))
		for _, def := range defs {
			target, err := targetPath(file, e.opts.OutputDir, def.Extension)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, engine.NewOperation(def, target))
		}
		item := engine.NewItem(filepath.Base(file), file, ops)
		item.Data = file
		items = append(items, item)
	}

	ctxlog.From(ctx).Debug("export scope resolved",
		slog.Int("files", len(files)),
		slog.Int("formats", len(defs)),
		slog.String("converter", e.converter),
	)
	return items, defs, nil
}

func (e *Exporter) Process(ctx context.Context, item *engine.Item, op *engine.Operation) error {
	src, _ := item.Data.(string)
	target, _ := op.Data.(string)
	if src == "" || target == "" {
		return fmt.Errorf("export %s: missing source or target path", item.Title)
	}

	dest, err := AvailableDestination(target)
	if err != nil {
		return err
	}

	args := []string{src, dest}
	if v := strings.TrimSpace(e.opts.Version); v != "" {
		args = append(args, v)
	}

	runner := &procrun.Runner{
		LogTag:   e.opts.LogTag,
		Log:      e.log,
		Raw:      e.Raw,
		Registry: e.Registry,
	}
	spec := procrun.Spec{
		Path:    e.converter,
		Args:    args,
		Timeout: time.Duration(e.opts.Timeout) * time.Second,
	}
	if err := runner.Run(ctx, spec); err != nil {
		return err
	}

	op.SetUserResult(dest)
	return op.State().SetStatus(model.StatusSucceeded)
}

func (e *Exporter) log(message string) {
	if e.job != nil {
		e.job.Log(message)
	}
}

func resolveConverter(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", model.NewValidationError("converter", "converter executable is required")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", model.NewValidationError("converter", fmt.Sprintf("converter %s not found or not executable", name))
	}
	return path, nil
}
