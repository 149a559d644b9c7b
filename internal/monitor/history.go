// Package monitor samples the memory and CPU of whatever process listens on
// the monitored port, independently of any test run.
package monitor

import (
	"sync"
	"time"
)

// HistorySize is how many samples are kept.
const HistorySize = 100

// Sample is one observation. Present is false when no process was listening
// on the port; the numeric fields are then zero and meaningless.
type Sample struct {
	Seq        uint64 // 0-based position in the full, unbounded sequence
	Time       time.Time
	Present    bool
	PID        int32
	Name       string
	MemoryMB   float64
	CPUPercent float64
}

// History is a fixed-size FIFO of samples. It has a single writer (the
// sampler) and any number of readers, which always get copies.
type History struct {
	mu    sync.RWMutex
	buf   []Sample
	size  int
	total uint64
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{buf: make([]Sample, 0, size), size: size}
}

// Append stamps s with the next sequence number, evicting the oldest sample
// when full, and returns the stamped copy.
func (h *History) Append(s Sample) Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	s.Seq = h.total
	h.total++
	if len(h.buf) < h.size {
		h.buf = append(h.buf, s)
		return s
	}
	copy(h.buf, h.buf[1:])
	h.buf[len(h.buf)-1] = s
	return s
}

// Snapshot returns the retained samples, oldest first.
func (h *History) Snapshot() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Sample(nil), h.buf...)
}

// Recent returns at most the n newest samples, oldest first.
func (h *History) Recent(n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > len(h.buf) {
		n = len(h.buf)
	}
	if n <= 0 {
		return nil
	}
	return append([]Sample(nil), h.buf[len(h.buf)-n:]...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buf)
}

// Total is the number of samples ever appended.
func (h *History) Total() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *History) Latest() (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.buf) == 0 {
		return Sample{}, false
	}
	return h.buf[len(h.buf)-1], true
}

// Peak returns the highest memory and CPU among retained present samples.
func (h *History) Peak() (memoryMB, cpuPercent float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.buf {
		if !s.Present {
			continue
		}
		if s.MemoryMB > memoryMB {
			memoryMB = s.MemoryMB
		}
		if s.CPUPercent > cpuPercent {
			cpuPercent = s.CPUPercent
		}
	}
	return memoryMB, cpuPercent
}
