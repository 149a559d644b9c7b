package runner

import (
	"context"
	"sync/atomic"
	"time"

	"wsoak/internal/config"
	"wsoak/internal/events"
	"wsoak/internal/session"
)

// RunState belongs to exactly one run. A stop followed by a new start
// creates a fresh RunState, so goroutines of the old run never see the new
// run's flag.
type RunState struct {
	ID      string
	Started time.Time

	running  atomic.Bool
	round    atomic.Int64
	inflight atomic.Int64

	done chan struct{}
	err  error // set before done is closed
}

func newRunState(id string) *RunState {
	s := &RunState{ID: id, Started: time.Now(), done: make(chan struct{})}
	s.running.Store(true)
	s.round.Store(1)
	return s
}

func (s *RunState) Running() bool { return s.running.Load() }

// Round is the 1-based round currently executing or resting.
func (s *RunState) Round() int { return int(s.round.Load()) }

// Inflight is the number of client workers still inside the current round.
func (s *RunState) Inflight() int64 { return s.inflight.Load() }

// Done is closed once the run's scheduler has returned.
func (s *RunState) Done() <-chan struct{} { return s.done }

// stop clears the running flag and reports whether it was set.
func (s *RunState) stop() bool { return s.running.CompareAndSwap(true, false) }

// Session performs one connect → listen → close cycle.
type Session interface {
	Run(ctx context.Context, t session.Ticket) session.Result
}

// SessionFactory builds the session driver shared by every worker of a run.
type SessionFactory func(endpoint string, cfg config.TestConfiguration, gate session.Gate, log events.Publisher) Session

// DefaultSessions dials real WebSocket sessions.
func DefaultSessions(endpoint string, cfg config.TestConfiguration, gate session.Gate, log events.Publisher) Session {
	return session.NewRunner(endpoint, session.NewIdentity(cfg.DeviceID), cfg.SessionDuration(), session.DefaultTimeouts(), gate, log)
}

// Resolver looks up the WebSocket endpoint once per run.
type Resolver interface {
	Resolve(ctx context.Context, cfg config.TestConfiguration) (string, error)
}

// Observer receives results as they happen. Both methods may be called from
// many goroutines at once.
type Observer interface {
	SessionFinished(res session.Result)
	RoundFinished(sum RoundSummary)
}

// RunObserver is an Observer that also wants to know when a run begins.
// RunStarted is called from Start before any session of the run exists.
type RunObserver interface {
	RunStarted(runID string)
}

// RoundSummary describes one finished round. Completed is false when the
// round was cut short by a stop.
type RoundSummary struct {
	RunID     string        `json:"run_id"`
	Round     int           `json:"round"`
	Clients   int           `json:"clients"`
	Sessions  int           `json:"sessions"`
	Success   int           `json:"success"`
	Failures  int           `json:"failures"`
	Messages  int           `json:"messages"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Elapsed   time.Duration `json:"elapsed"`
	Completed bool          `json:"completed"`
}

// Pacing holds the fixed delays of the round loop.
type Pacing struct {
	StartStagger time.Duration // between worker launches
	CycleDelay   time.Duration // between a worker's sessions
	RestTick     time.Duration // one unit of rest; the run sleeps RestSeconds of them
}

func DefaultPacing() Pacing {
	return Pacing{
		StartStagger: 100 * time.Millisecond,
		CycleDelay:   500 * time.Millisecond,
		RestTick:     time.Second,
	}
}

// sleep waits for d or until ctx is done, and reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
