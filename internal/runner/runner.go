// Package runner owns the start/stop state machine of a soak test and the
// round loop it gates.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"wsoak/internal/config"
	"wsoak/internal/events"
)

var ErrAlreadyRunning = errors.New("a test is already running")

// Controller is Idle until Start and back to Idle as soon as Stop is called.
// Workers of a stopped run keep draining in the background against their own
// RunState, so a new Start never waits for them.
type Controller struct {
	Resolver  Resolver
	Sessions  SessionFactory
	Observers []Observer
	Log       events.Publisher
	Pacing    Pacing

	mu      sync.Mutex
	current *RunState
}

func NewController(resolver Resolver, log events.Publisher, observers ...Observer) *Controller {
	if log == nil {
		log = events.Discard
	}
	return &Controller{
		Resolver:  resolver,
		Sessions:  DefaultSessions,
		Observers: observers,
		Log:       log,
		Pacing:    DefaultPacing(),
	}
}

// Start launches a run in the background. It returns ErrAlreadyRunning,
// changing nothing, when a run is active.
func (c *Controller) Start(ctx context.Context, cfg config.TestConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Running() {
		return ErrAlreadyRunning
	}

	state := newRunState(uuid.NewString())
	c.current = state
	for _, o := range c.Observers {
		if ro, ok := o.(RunObserver); ok {
			ro.RunStarted(state.ID)
		}
	}

	sched := &Scheduler{
		Config:    cfg,
		Resolver:  c.Resolver,
		Sessions:  c.Sessions,
		Observers: c.Observers,
		Log:       c.Log,
		Pacing:    c.Pacing,
	}

	c.Log.Publishf(events.LevelInfo, "starting test run %s", state.ID)
	go func() {
		state.err = sched.Run(ctx, state)
		state.stop()
		close(state.done)
	}()
	return nil
}

// Stop clears the run flag and reports whether a run was active. In-flight
// sessions finish on their own.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	state := c.current
	c.mu.Unlock()

	if state == nil || !state.stop() {
		return false
	}
	c.Log.Publishf(events.LevelWarning, "stopping test, waiting for in-flight sessions to finish")
	return true
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.Running()
}

// Round is the round of the latest run, or 0 before the first Start.
func (c *Controller) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.Round()
}

// Inflight is the number of workers of the latest run that have not returned.
func (c *Controller) Inflight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.Inflight()
}

// Current returns the latest run's state, or nil.
func (c *Controller) Current() *RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Wait blocks until the latest run's scheduler has returned and reports its
// error, which is non-nil only when provisioning failed.
func (c *Controller) Wait() error {
	state := c.Current()
	if state == nil {
		return nil
	}
	<-state.done
	return state.err
}
