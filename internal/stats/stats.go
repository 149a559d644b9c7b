package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"wsoak/internal/runner"
	"wsoak/internal/session"
)

const maxErrorKeyLen = 96

// Stats holds real-time aggregated session metrics for the current run. It is
// a runner.RunObserver: a new run resets it, and results stamped with any
// other run ID are dropped so a stopped run still draining cannot leak in.
type Stats struct {
	Sessions uint64
	Success  uint64
	Fail     uint64
	Messages uint64
	Rounds   uint64

	outcomes [4]uint64

	// Durations in microseconds
	SessionTime   *Distribution
	HandshakeTime *Distribution

	// Frames received per successful session
	PerSession *Distribution

	// gate is held shared while a result is recorded and exclusively while
	// the run changes, so a reset never interleaves with a late result.
	gate  sync.RWMutex
	runID string

	mu        sync.Mutex
	errCounts map[string]uint64
	lastRound runner.RoundSummary
}

func NewStats() *Stats {
	return &Stats{
		SessionTime:   newDurationDistribution(),
		HandshakeTime: newDurationDistribution(),
		PerSession:    newFrameDistribution(),
		errCounts:     make(map[string]uint64),
	}
}

// RunStarted clears everything and scopes the counters to runID.
func (s *Stats) RunStarted(runID string) {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.runID = runID
	s.reset()
}

// accepts reports whether a result of runID belongs to the tracked run.
// Everything is accepted until the first RunStarted. Callers hold gate.
func (s *Stats) accepts(runID string) bool {
	return s.runID == "" || s.runID == runID
}

func (s *Stats) SessionFinished(res session.Result) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.accepts(res.RunID) {
		return
	}

	atomic.AddUint64(&s.Sessions, 1)
	atomic.AddUint64(&s.Messages, uint64(res.Messages))
	if int(res.Outcome) < len(s.outcomes) {
		atomic.AddUint64(&s.outcomes[res.Outcome], 1)
	}

	s.SessionTime.ObserveDuration(res.Elapsed)
	if res.Handshake > 0 {
		s.HandshakeTime.ObserveDuration(res.Handshake)
	}

	if res.Outcome == session.Success {
		atomic.AddUint64(&s.Success, 1)
		s.PerSession.ObserveFrames(res.Messages)
		return
	}

	atomic.AddUint64(&s.Fail, 1)
	key := res.Outcome.String()
	if res.Err != nil {
		key += ": " + res.Err.Error()
	}
	if len(key) > maxErrorKeyLen {
		key = key[:maxErrorKeyLen] + "…"
	}
	s.mu.Lock()
	s.errCounts[key]++
	s.mu.Unlock()
}

func (s *Stats) RoundFinished(sum runner.RoundSummary) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.accepts(sum.RunID) {
		return
	}

	if sum.Completed {
		atomic.AddUint64(&s.Rounds, 1)
	}
	s.mu.Lock()
	s.lastRound = sum
	s.mu.Unlock()
}

// LastRound is the most recent round summary, complete or not.
func (s *Stats) LastRound() runner.RoundSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRound
}

func (s *Stats) Outcome(o session.Outcome) uint64 {
	if int(o) >= len(s.outcomes) {
		return 0
	}
	return atomic.LoadUint64(&s.outcomes[o])
}

func (s *Stats) ErrorRate() float64 {
	total := atomic.LoadUint64(&s.Sessions)
	if total == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(total)) * 100
}

// ErrorCount is one failure reason and how often it was seen.
type ErrorCount struct {
	Reason string
	Count  uint64
}

// GetErrorCounts returns failure reasons, most frequent first.
func (s *Stats) GetErrorCounts() []ErrorCount {
	s.mu.Lock()
	out := make([]ErrorCount, 0, len(s.errCounts))
	for k, v := range s.errCounts {
		out = append(out, ErrorCount{Reason: k, Count: v})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func (s *Stats) GetP50Session() float64 { return usToMs(s.SessionTime.Quantile(50)) }
func (s *Stats) GetP90Session() float64 { return usToMs(s.SessionTime.Quantile(90)) }
func (s *Stats) GetP99Session() float64 { return usToMs(s.SessionTime.Quantile(99)) }

func (s *Stats) GetP50Handshake() float64 { return usToMs(s.HandshakeTime.Quantile(50)) }
func (s *Stats) GetP99Handshake() float64 { return usToMs(s.HandshakeTime.Quantile(99)) }

// MeanMessages is the average frame count of successful sessions.
func (s *Stats) MeanMessages() float64 { return s.PerSession.Mean() }

// Reset zeroes every counter and histogram but keeps the tracked run.
func (s *Stats) Reset() {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.reset()
}

func (s *Stats) reset() {
	atomic.StoreUint64(&s.Sessions, 0)
	atomic.StoreUint64(&s.Success, 0)
	atomic.StoreUint64(&s.Fail, 0)
	atomic.StoreUint64(&s.Messages, 0)
	atomic.StoreUint64(&s.Rounds, 0)
	for i := range s.outcomes {
		atomic.StoreUint64(&s.outcomes[i], 0)
	}
	s.SessionTime.Reset()
	s.HandshakeTime.Reset()
	s.PerSession.Reset()

	s.mu.Lock()
	s.errCounts = make(map[string]uint64)
	s.lastRound = runner.RoundSummary{}
	s.mu.Unlock()
}

func usToMs(us int64) float64 {
	return float64(us) / float64(time.Millisecond/time.Microsecond)
}
