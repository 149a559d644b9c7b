package stats

import (
	"context"
	"sync/atomic"
	"time"
)

// Snapshot is sent over the channel
type Snapshot struct {
	Sessions uint64
	Success  uint64
	Fail     uint64
	Messages uint64
	Rounds   uint64
	Inflight int64
	Round    int

	// Pre-calculated percentiles for the UI (cheap copy)
	P50SessionMs   float64
	P90SessionMs   float64
	P99SessionMs   float64
	MaxSessionMs   float64
	P50HandshakeMs float64
	MeanMessages   float64
	ErrorRate      float64
}

// UpdateChan is the channel type
type UpdateChan chan Snapshot

// Progress reports the live run position that Stats cannot know itself.
type Progress interface {
	Round() int
	Inflight() int64
}

func (s *Stats) Snapshot(p Progress) Snapshot {
	snap := Snapshot{
		Sessions:       atomic.LoadUint64(&s.Sessions),
		Success:        atomic.LoadUint64(&s.Success),
		Fail:           atomic.LoadUint64(&s.Fail),
		Messages:       atomic.LoadUint64(&s.Messages),
		Rounds:         atomic.LoadUint64(&s.Rounds),
		P50SessionMs:   s.GetP50Session(),
		P90SessionMs:   s.GetP90Session(),
		P99SessionMs:   s.GetP99Session(),
		MaxSessionMs:   usToMs(s.SessionTime.Max()),
		P50HandshakeMs: s.GetP50Handshake(),
		MeanMessages:   s.MeanMessages(),
		ErrorRate:      s.ErrorRate(),
	}
	if p != nil {
		snap.Round = p.Round()
		snap.Inflight = p.Inflight()
	}
	return snap
}

// StartTickLoop starts a goroutine that pushes snapshots to updates
func (s *Stats) StartTickLoop(ctx context.Context, interval time.Duration, p Progress, updates UpdateChan) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Non-blocking send
				select {
				case updates <- s.Snapshot(p):
				default:
					// Drop update if channel full, UI acts as backpressure
				}
			}
		}
	}()
}
