package procrun

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
)

// Registry tracks live processes spawned by runners so a supervisor can list
// or terminate them.
type Registry struct {
	mu    sync.Mutex
	procs map[int]*os.Process
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[int]*os.Process)}
}

func (r *Registry) AddProcess(p *os.Process) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.procs[p.Pid] = p
	r.mu.Unlock()
}

func (r *Registry) RemoveProcess(p *os.Process) {
	if p == nil {
		return
	}
	r.mu.Lock()
	delete(r.procs, p.Pid)
	r.mu.Unlock()
}

// Processes returns the registered processes ordered by pid.
func (r *Registry) Processes() []*os.Process {
	r.mu.Lock()
	out := make([]*os.Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *os.Process) int { return cmp.Compare(a.Pid, b.Pid) })
	return out
}

// KillAll kills and forgets every registered process together with its
// process group. It returns how many were still running.
func (r *Registry) KillAll() (int, error) {
	r.mu.Lock()
	procs := r.procs
	r.procs = make(map[int]*os.Process)
	r.mu.Unlock()

	killed := 0
	var errs []error
	for pid, p := range procs {
		err := p.Kill()
		switch {
		case err == nil:
			killed++
			_ = killProcessGroup(p)
		case errors.Is(err, os.ErrProcessDone):
		default:
			errs = append(errs, fmt.Errorf("kill pid %d: %w", pid, err))
		}
	}
	return killed, errors.Join(errs...)
}
