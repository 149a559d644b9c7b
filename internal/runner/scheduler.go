package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wsoak/internal/config"
	"wsoak/internal/events"
)

// Scheduler drives the rounds of one run: resolve the endpoint once, then
// fan out a worker per client, join them all, rest, and go again until the
// run is stopped.
type Scheduler struct {
	Config    config.TestConfiguration
	Resolver  Resolver
	Sessions  SessionFactory
	Observers []Observer
	Log       events.Publisher
	Pacing    Pacing
}

// Run blocks until the run stops or ctx is done. The only error it returns
// is a provisioning failure, in which case no round was started.
func (s *Scheduler) Run(ctx context.Context, state *RunState) error {
	cfg := s.Config
	endpoint, err := s.Resolver.Resolve(ctx, cfg)
	if err != nil {
		s.Log.Publishf(events.LevelError, "%v", err)
		s.Log.Publishf(events.LevelError, "cannot resolve websocket endpoint, test aborted")
		return err
	}
	s.Log.Publishf(events.LevelSuccess, "websocket endpoint: %s", endpoint)
	s.Log.Publishf(events.LevelInfo, "config: %d clients, %ds sessions, %d requests per round, %ds rest",
		cfg.ClientCount, cfg.SessionDurationSeconds, cfg.RequestsPerRound, cfg.RestSeconds)

	sessions := s.Sessions
	if sessions == nil {
		sessions = DefaultSessions
	}
	sess := sessions(endpoint, cfg, state, s.Log)

	for state.Running() && ctx.Err() == nil {
		sum := s.runRound(ctx, state, sess)
		for _, o := range s.Observers {
			o.RoundFinished(sum)
		}
		if !sum.Completed {
			break
		}
		s.Log.Publishf(events.LevelSuccess, "round %d complete: %d/%d sessions ok, %d messages in %s",
			sum.Round, sum.Success, sum.Sessions, sum.Messages, sum.Elapsed.Round(time.Millisecond))

		if !s.rest(ctx, state) {
			break
		}
		state.round.Add(1)
	}

	s.Log.Publishf(events.LevelWarning, "test stopped during round %d", state.Round())
	return nil
}

func (s *Scheduler) runRound(ctx context.Context, state *RunState, sess Session) RoundSummary {
	round := state.Round()
	s.Log.Publishf(events.LevelInfo, "========== round %d: starting %d clients ==========", round, s.Config.ClientCount)

	started := time.Now()
	var (
		wg       sync.WaitGroup
		counts   tally
		launched int
	)
	limiter := rate.NewLimiter(rate.Every(s.Pacing.StartStagger), 1)

	for client := 1; client <= s.Config.ClientCount; client++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if !state.Running() {
			break
		}
		w := &worker{
			client:    client,
			round:     round,
			requests:  s.Config.RequestsPerRound,
			sess:      sess,
			state:     state,
			pacing:    s.Pacing,
			log:       s.Log,
			observers: s.Observers,
			tally:     &counts,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
		launched++
	}

	// Barrier: nothing of the next round starts before every worker returns.
	wg.Wait()

	finished := time.Now()
	return RoundSummary{
		RunID:     state.ID,
		Round:     round,
		Clients:   launched,
		Sessions:  int(counts.sessions.Load()),
		Success:   int(counts.success.Load()),
		Failures:  int(counts.failures.Load()),
		Messages:  int(counts.messages.Load()),
		Started:   started,
		Finished:  finished,
		Elapsed:   finished.Sub(started),
		Completed: state.Running() && ctx.Err() == nil,
	}
}

// rest sleeps RestSeconds ticks, checking the run flag after each one.
func (s *Scheduler) rest(ctx context.Context, state *RunState) bool {
	if s.Config.RestSeconds > 0 {
		s.Log.Publishf(events.LevelInfo, "resting %ds before round %d", s.Config.RestSeconds, state.Round()+1)
	}
	for i := 0; i < s.Config.RestSeconds; i++ {
		if !state.Running() || !sleep(ctx, s.Pacing.RestTick) {
			return false
		}
	}
	return state.Running() && ctx.Err() == nil
}
