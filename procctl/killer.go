// Package procctl finds and force-kills browser processes by name.
package procctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Proc is the part of a running process the killer needs.
type Proc interface {
	PID() int32
	NameWithContext(ctx context.Context) (string, error)
	KillWithContext(ctx context.Context) error
}

// Lister returns the running processes.
type Lister func(ctx context.Context) ([]Proc, error)

type systemProc struct{ *process.Process }

func (p systemProc) PID() int32 { return p.Pid }

// SystemProcesses lists the host's processes through gopsutil.
func SystemProcesses(ctx context.Context) ([]Proc, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	procs := make([]Proc, 0, len(ps))
	for _, p := range ps {
		procs = append(procs, systemProc{p})
	}
	return procs, nil
}

// Killer targets every process whose name contains Name, ignoring case and
// a trailing ".exe". The calling process is never matched.
type Killer struct {
	Name      string
	Processes Lister
}

func NewKiller(name string) *Killer {
	return &Killer{Name: name, Processes: SystemProcesses}
}

func (k *Killer) matching(ctx context.Context) ([]Proc, []string, error) {
	procs, err := k.Processes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s processes: %w", k.Name, err)
	}

	want := strings.ToLower(k.Name)
	self := int32(os.Getpid())
	var (
		matched []Proc
		names   []string
	)
	for _, p := range procs {
		if p.PID() == self {
			continue
		}
		// Processes that exited or are not readable are skipped.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.Contains(strings.TrimSuffix(strings.ToLower(name), ".exe"), want) {
			continue
		}
		matched = append(matched, p)
		names = append(names, fmt.Sprintf("%d %s", p.PID(), name))
	}
	return matched, names, nil
}

// List returns "pid name" for each matching process.
func (k *Killer) List(ctx context.Context) ([]string, error) {
	_, names, err := k.matching(ctx)
	return names, err
}

// Kill force-terminates every matching process. No match is not an error.
func (k *Killer) Kill(ctx context.Context) error {
	procs, _, err := k.matching(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range procs {
		if err := p.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", p.PID(), err))
		}
	}
	return errors.Join(errs...)
}
