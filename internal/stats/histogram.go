package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sessions are configured in whole seconds and a soak may hold one open for
// hours, so durations are tracked up to a day. Frame counts get the same
// headroom for chatty devices.
const (
	maxTrackedDuration = 24 * time.Hour
	maxTrackedFrames   = 10_000_000
)

// Distribution is one per-session quantity (session time, handshake time or
// frames received) kept in an HDR histogram at 3 significant figures. Workers
// record into it while the TUI reads quantiles, so every access is locked.
//
// Samples above the tracked range are clamped to it and counted, instead of
// being silently rejected by the histogram.
type Distribution struct {
	mu      sync.Mutex
	hist    *hdrhistogram.Histogram
	highest int64
	clamped int64
}

// newDurationDistribution records microseconds.
func newDurationDistribution() *Distribution {
	return newDistribution(int64(maxTrackedDuration / time.Microsecond))
}

func newFrameDistribution() *Distribution {
	return newDistribution(maxTrackedFrames)
}

func newDistribution(highest int64) *Distribution {
	return &Distribution{hist: hdrhistogram.New(1, highest, 3), highest: highest}
}

func (d *Distribution) ObserveDuration(v time.Duration) { d.observe(v.Microseconds()) }

func (d *Distribution) ObserveFrames(n int) { d.observe(int64(n)) }

func (d *Distribution) observe(v int64) {
	if v < 0 {
		v = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if v > d.highest {
		v = d.highest
		d.clamped++
	}
	_ = d.hist.RecordValue(v) // in range after clamping
}

// Quantile takes q in percent, 0 to 100.
func (d *Distribution) Quantile(q float64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.ValueAtQuantile(q)
}

func (d *Distribution) Mean() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.Mean()
}

func (d *Distribution) Max() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.Max()
}

func (d *Distribution) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.TotalCount()
}

// Clamped is how many samples exceeded the tracked range since the last reset.
func (d *Distribution) Clamped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clamped
}

func (d *Distribution) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hist.Reset()
	d.clamped = 0
}
