// Package procrun executes one unit of work as an external process, forwarding
// tagged stdout lines to a log sink and killing the process on cancellation
// or timeout.
package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"batch-runner/internal/ctxlog"
)

const (
	DefaultLogTag    = "LOG:"
	defaultWaitDelay = 2 * time.Second
)

var (
	ErrProcessFailed = errors.New("failed to process the file")
	ErrCancelled     = errors.New("process cancelled")
)

// Registrar records spawned processes for an external supervisor.
type Registrar interface {
	AddProcess(p *os.Process)
}

type remover interface {
	RemoveProcess(p *os.Process)
}

type Spec struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Timeout <= 0 means no timeout.
	Timeout time.Duration
}

// Runner spawns processes. The zero value is usable; it drops log lines.
type Runner struct {
	// LogTag marks stdout lines that are log messages. Defaults to DefaultLogTag.
	LogTag string
	// Log receives tagged lines with the tag stripped.
	Log func(message string)
	// Raw, when set, receives untagged stdout lines.
	Raw      io.Writer
	Registry Registrar
	// WaitDelay bounds how long Wait blocks on output held open by orphaned
	// children after the process itself exited.
	WaitDelay time.Duration
}

// Run starts spec and blocks until it exits, the context is cancelled or the
// timeout expires. Exit code 0 returns nil; any other exit wraps
// ErrProcessFailed; cancellation and timeout kill the process and wrap
// ErrCancelled together with the context error.
func (r *Runner) Run(ctx context.Context, spec Spec) error {
	if strings.TrimSpace(spec.Path) == "" {
		return fmt.Errorf("start process: empty executable path")
	}
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	if ctx.Err() != nil {
		return cancelled(ctx)
	}

	logger := ctxlog.From(ctx).With(slog.String("executable", filepath.Base(spec.Path)))

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	stderr := &limitedBuffer{max: maxKeep}
	cmd.Stderr = stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}
	startProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return fmt.Errorf("start %s: %w", spec.Path, err)
	}
	logger.Debug("process started", slog.Int("pid", cmd.Process.Pid))
	if r.Registry != nil {
		r.Registry.AddProcess(cmd.Process)
		if rm, ok := r.Registry.(remover); ok {
			defer rm.RemoveProcess(cmd.Process)
		}
	}

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		r.scan(pr)
	}()

	// Exactly one of the exit path and the cancellation path resolves the
	// outcome. A killed process never reports a normal exit.
	var resolved atomic.Bool
	result := make(chan error, 1)

	stop := context.AfterFunc(ctx, func() {
		if !resolved.CompareAndSwap(false, true) {
			return
		}
		if err := killProcessGroup(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warn("kill process", slog.String("error", err.Error()))
		}
		result <- cancelled(ctx)
	})
	defer stop()

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		waitErr := cmd.Wait()
		_ = pw.Close()
		if resolved.CompareAndSwap(false, true) {
			result <- exitError(waitErr, stderr.String())
		}
	}()

	err := <-result
	<-exited
	<-scanned

	logger.Debug("process finished",
		slog.Int("pid", cmd.Process.Pid),
		slog.Bool("ok", err == nil),
	)
	return err
}

func (r *Runner) scan(rd io.Reader) {
	tag := r.LogTag
	if tag == "" {
		tag = DefaultLogTag
	}
	forEachLine(rd, func(line string) {
		if msg, ok := strings.CutPrefix(line, tag); ok {
			if r.Log != nil {
				r.Log(msg)
			}
			return
		}
		if r.Raw != nil {
			_, _ = io.WriteString(r.Raw, line+"\n")
		}
	})
}

// cancelled always wraps ctx.Err() so callers can classify the result with
// context.Canceled or context.DeadlineExceeded. A custom cause, such as the
// signal that stopped the run, is kept alongside.
func cancelled(ctx context.Context) error {
	err := ctx.Err()
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, err) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w: %w", ErrCancelled, err, cause)
}

func exitError(waitErr error, stderr string) error {
	if waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay) {
		return nil
	}
	detail := waitErr.Error()
	if msg := strings.TrimSpace(stderr); msg != "" {
		detail += "\n" + msg
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return fmt.Errorf("%w: %s", ErrProcessFailed, detail)
	}
	return fmt.Errorf("%w: %s: %w", ErrProcessFailed, detail, waitErr)
}
