package runner

import (
	"context"
	"sync/atomic"

	"wsoak/internal/events"
	"wsoak/internal/session"
)

// tally accumulates the results of one round across its workers.
type tally struct {
	sessions atomic.Int64
	success  atomic.Int64
	failures atomic.Int64
	messages atomic.Int64
}

func (t *tally) add(res session.Result) {
	t.sessions.Add(1)
	t.messages.Add(int64(res.Messages))
	if res.Outcome == session.Success {
		t.success.Add(1)
	} else {
		t.failures.Add(1)
	}
}

// worker is one simulated client within one round.
type worker struct {
	client    int
	round     int
	requests  int
	sess      Session
	state     *RunState
	pacing    Pacing
	log       events.Publisher
	observers []Observer
	tally     *tally
}

// run performs up to requests sessions back to back, pausing CycleDelay
// between them and checking the run flag before each one.
func (w *worker) run(ctx context.Context) {
	w.state.inflight.Add(1)
	defer w.state.inflight.Add(-1)
	defer w.recoverPanic()

	for req := 1; req <= w.requests; req++ {
		if req > 1 && !sleep(ctx, w.pacing.CycleDelay) {
			return
		}
		if !w.state.Running() {
			return
		}

		res := w.sess.Run(ctx, session.Ticket{Round: w.round, Client: w.client, Request: req})
		res.RunID = w.state.ID
		w.tally.add(res)
		for _, o := range w.observers {
			o.SessionFinished(res)
		}
	}
}

// recoverPanic keeps one misbehaving session from taking down the round.
func (w *worker) recoverPanic() {
	if r := recover(); r != nil {
		w.log.Publishf(events.LevelError, "[round %d][client %d] worker panic: %v", w.round, w.client, r)
	}
}
