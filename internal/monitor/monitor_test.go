package monitor

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"wsoak/internal/events"
)

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h := NewHistory(HistorySize)
	const total = 250
	for i := 0; i < total; i++ {
		h.Append(Sample{Present: true, MemoryMB: float64(i)})
	}

	if h.Len() != HistorySize {
		t.Fatalf("expected %d samples, got %d", HistorySize, h.Len())
	}
	if h.Total() != total {
		t.Errorf("expected total %d, got %d", total, h.Total())
	}

	snap := h.Snapshot()
	if snap[0].Seq != total-HistorySize {
		t.Errorf("expected oldest seq %d, got %d", total-HistorySize, snap[0].Seq)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Seq != snap[i-1].Seq+1 {
			t.Fatalf("sequence gap at %d: %d after %d", i, snap[i].Seq, snap[i-1].Seq)
		}
	}
	if snap[0].MemoryMB != float64(total-HistorySize) {
		t.Errorf("expected oldest value %d, got %v", total-HistorySize, snap[0].MemoryMB)
	}
	latest, ok := h.Latest()
	if !ok || latest.Seq != total-1 {
		t.Errorf("expected latest seq %d, got %d", total-1, latest.Seq)
	}
}

func TestHistory_RecentAndPeak(t *testing.T) {
	h := NewHistory(5)
	if _, ok := h.Latest(); ok {
		t.Errorf("empty history has no latest sample")
	}
	h.Append(Sample{Present: true, MemoryMB: 10, CPUPercent: 90})
	h.Append(Sample{Present: false})
	h.Append(Sample{Present: true, MemoryMB: 30, CPUPercent: 5})

	recent := h.Recent(2)
	if len(recent) != 2 || recent[0].Present || recent[1].MemoryMB != 30 {
		t.Errorf("unexpected recent window %+v", recent)
	}
	if got := h.Recent(10); len(got) != 3 {
		t.Errorf("expected recent to clamp to 3, got %d", len(got))
	}

	mem, cpu := h.Peak()
	if mem != 30 || cpu != 90 {
		t.Errorf("expected peak 30MB/90%%, got %v/%v", mem, cpu)
	}
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := NewHistory(3)
	h.Append(Sample{MemoryMB: 1})
	snap := h.Snapshot()
	snap[0].MemoryMB = 99
	if got := h.Snapshot()[0].MemoryMB; got != 1 {
		t.Errorf("snapshot aliased history storage: %v", got)
	}
}

// scriptedProber returns its samples in order, then repeats the last one.
type scriptedProber struct {
	mu      sync.Mutex
	samples []Sample
	errs    []error
	calls   int
}

func (p *scriptedProber) Probe(context.Context, int) (Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.samples) {
		i = len(p.samples) - 1
	}
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.samples[i], err
}

type sampleCollector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *sampleCollector) RecordSample(s Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *sampleCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func TestSampler_TicksAndLogsTransitions(t *testing.T) {
	prober := &scriptedProber{
		samples: []Sample{
			{},
			{Present: true, PID: 42, Name: "server", MemoryMB: 12},
			{Present: true, PID: 42, Name: "server", MemoryMB: 13},
			{},
			{},
		},
	}
	q := events.NewQueue()
	sink := &sampleCollector{}
	s := NewSampler(8000, prober, q, sink)
	s.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.len() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if sink.len() < 5 {
		t.Fatalf("expected at least 5 samples, got %d", sink.len())
	}
	if s.History.Total() != uint64(sink.len()) {
		t.Errorf("history and sinks disagree: %d vs %d", s.History.Total(), sink.len())
	}

	var levels []events.Level
	for _, e := range q.Drain() {
		levels = append(levels, e.Level)
	}
	want := []events.Level{events.LevelInfo, events.LevelWarning, events.LevelSuccess, events.LevelWarning}
	if len(levels) != len(want) {
		t.Fatalf("expected levels %v, got %v", want, levels)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("event %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestSampler_ProbeErrorRecordsAbsentSample(t *testing.T) {
	prober := &scriptedProber{
		samples: []Sample{{Present: true, PID: 1, MemoryMB: 5}},
		errs:    []error{errors.New("permission denied")},
	}
	s := NewSampler(8000, prober, nil)
	s.tick(context.Background())

	latest, ok := s.History.Latest()
	if !ok {
		t.Fatal("expected a sample after a failed probe")
	}
	if latest.Present {
		t.Errorf("failed probe must be recorded as absent, got %+v", latest)
	}
}

func TestProcessProber_FindsOwnListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	p := NewProcessProber()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := p.Probe(ctx, port)
	if err != nil {
		t.Skipf("process table not readable here: %v", err)
	}
	if !s.Present {
		t.Skip("own listening socket not visible in this environment")
	}
	if s.PID != int32(os.Getpid()) {
		t.Errorf("expected pid %d, got %d", os.Getpid(), s.PID)
	}
	if s.MemoryMB <= 0 {
		t.Errorf("expected resident memory, got %v", s.MemoryMB)
	}

	// Second probe reuses the cached handle.
	if _, err := p.Probe(ctx, port); err != nil {
		t.Errorf("second probe: %v", err)
	}
	if p.handles.Len() == 0 {
		t.Errorf("expected the process handle to be cached")
	}
}

func TestProcessProber_NothingListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewProcessProber().Probe(ctx, port)
	if err != nil {
		t.Skipf("process table not readable here: %v", err)
	}
	if s.Present {
		t.Errorf("expected no process on closed port %d, got pid %d", port, s.PID)
	}
}

func TestProcessProber_ExpiredScanIsAnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewProcessProber().Probe(ctx, port)
	if err == nil {
		t.Fatalf("a scan that ran out of time must not report the port as unserved, got %+v", s)
	}
	if s.Present {
		t.Errorf("expected no sample from an aborted scan, got %+v", s)
	}
}
