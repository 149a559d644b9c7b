package monitor

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v4/process"
)

// Prober finds the process listening on port and measures it. A Sample with
// Present=false and a nil error means nothing is listening.
type Prober interface {
	Probe(ctx context.Context, port int) (Sample, error)
}

const handleCacheSize = 64

type cachedProc struct {
	proc    *process.Process
	created int64
}

// ProcessProber scans the OS process table with gopsutil. Process handles
// are cached so CPU percentages are measured since the previous probe of the
// same process rather than since its start.
//
// Only TCP sockets in LISTEN state count. When several processes listen on
// the port the first one in enumeration order wins.
type ProcessProber struct {
	handles *lru.Cache[int32, cachedProc]
}

func NewProcessProber() *ProcessProber {
	c, err := lru.New[int32, cachedProc](handleCacheSize)
	if err != nil {
		panic(err) // only on a non-positive size
	}
	return &ProcessProber{handles: c}
}

func (p *ProcessProber) Probe(ctx context.Context, port int) (Sample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("listing processes: %w", err)
	}

	for _, proc := range procs {
		if ctx.Err() != nil {
			break
		}
		if !listensOn(ctx, proc, port) {
			continue
		}
		s, err := p.measure(ctx, proc)
		if err != nil {
			// Gone between the scan and the measurement, or not ours to read.
			continue
		}
		return s, nil
	}
	// A scan cut short says nothing about whether the port is served.
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("scanning processes for port %d: %w", port, err)
	}
	return Sample{}, nil
}

func listensOn(ctx context.Context, proc *process.Process, port int) bool {
	conns, err := proc.ConnectionsWithContext(ctx)
	if err != nil {
		return false
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == uint32(port) {
			return true
		}
	}
	return false
}

func (p *ProcessProber) measure(ctx context.Context, found *process.Process) (Sample, error) {
	proc, err := p.handle(ctx, found)
	if err != nil {
		return Sample{}, err
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	cpu, err := proc.PercentWithContext(ctx, 0)
	if err != nil {
		return Sample{}, err
	}
	name, _ := proc.NameWithContext(ctx)

	return Sample{
		Present:    true,
		PID:        proc.Pid,
		Name:       name,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		CPUPercent: cpu,
	}, nil
}

// handle returns the cached handle for found's PID unless the PID now
// belongs to a different process.
func (p *ProcessProber) handle(ctx context.Context, found *process.Process) (*process.Process, error) {
	created, err := found.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if h, ok := p.handles.Get(found.Pid); ok && h.created == created {
		return h.proc, nil
	}
	p.handles.Add(found.Pid, cachedProc{proc: found, created: created})
	return found, nil
}
