package engine

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"batch-runner/internal/model"
)

// Listeners implement any subset of the hook interfaces below and are
// registered with Hooks.Register.

type StartedHook interface {
	OnStarted(job *Job, start time.Time)
}

type InitializedHook interface {
	OnInitialized(job *Job, items []*Item, defs []model.OperationDefinition)
}

type ItemProcessedHook interface {
	OnItemProcessed(job *Job, item *Item)
}

type ProgressHook interface {
	OnProgressChanged(job *Job, progress float64)
}

type LogHook interface {
	OnLog(job *Job, message string)
}

type CompletedHook interface {
	OnCompleted(job *Job, elapsed time.Duration, status model.Status)
}

// Hooks fans job lifecycle events out to registered listeners. Listeners are
// called synchronously on the job's goroutine, in registration order.
type Hooks struct {
	mu sync.RWMutex

	started       []StartedHook
	initialized   []InitializedHook
	itemProcessed []ItemProcessedHook
	progress      []ProgressHook
	log           []LogHook
	completed     []CompletedHook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

// Register adds listener to every hook it implements and reports whether it
// implemented at least one.
func (h *Hooks) Register(listener any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	registered := false
	if l, ok := listener.(StartedHook); ok {
		h.started = append(h.started, l)
		registered = true
	}
	if l, ok := listener.(InitializedHook); ok {
		h.initialized = append(h.initialized, l)
		registered = true
	}
	if l, ok := listener.(ItemProcessedHook); ok {
		h.itemProcessed = append(h.itemProcessed, l)
		registered = true
	}
	if l, ok := listener.(ProgressHook); ok {
		h.progress = append(h.progress, l)
		registered = true
	}
	if l, ok := listener.(LogHook); ok {
		h.log = append(h.log, l)
		registered = true
	}
	if l, ok := listener.(CompletedHook); ok {
		h.completed = append(h.completed, l)
		registered = true
	}
	return registered
}

func (h *Hooks) emitStarted(job *Job, start time.Time) {
	h.mu.RLock()
	ls := slices.Clone(h.started)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "started", func() { l.OnStarted(job, start) })
	}
}

func (h *Hooks) emitInitialized(job *Job, items []*Item, defs []model.OperationDefinition) {
	h.mu.RLock()
	ls := slices.Clone(h.initialized)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "initialized", func() { l.OnInitialized(job, items, defs) })
	}
}

func (h *Hooks) emitItemProcessed(job *Job, item *Item) {
	h.mu.RLock()
	ls := slices.Clone(h.itemProcessed)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "item_processed", func() { l.OnItemProcessed(job, item) })
	}
}

func (h *Hooks) emitProgress(job *Job, progress float64) {
	h.mu.RLock()
	ls := slices.Clone(h.progress)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "progress", func() { l.OnProgressChanged(job, progress) })
	}
}

func (h *Hooks) emitLog(job *Job, message string) {
	h.mu.RLock()
	ls := slices.Clone(h.log)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "log", func() { l.OnLog(job, message) })
	}
}

func (h *Hooks) emitCompleted(job *Job, elapsed time.Duration, status model.Status) {
	h.mu.RLock()
	ls := slices.Clone(h.completed)
	h.mu.RUnlock()
	for _, l := range ls {
		guard(job, "completed", func() { l.OnCompleted(job, elapsed, status) })
	}
}

// guard keeps a panicking listener from taking the run down with it.
func guard(job *Job, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			job.logger.Error("hook listener panicked",
				slog.String("hook", hook),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}
