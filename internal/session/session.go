// Package session drives a single simulated device through one
// connect → hello → listen → receive → close cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"wsoak/internal/events"
)

var (
	ErrHandshakeTimeout = errors.New("no hello reply before timeout")
	ErrProtocolMismatch = errors.New("unexpected reply to hello")
)

const closeGrace = time.Second

// Gate reports whether the owning run is still active.
type Gate interface {
	Running() bool
}

// Runner holds everything that is shared by the sessions of one run. Run is
// safe for concurrent use.
type Runner struct {
	Endpoint string
	Identity Identity
	Duration time.Duration
	Timeouts Timeouts
	Gate     Gate
	Log      events.Publisher

	dialer *websocket.Dialer
}

func NewRunner(endpoint string, id Identity, duration time.Duration, timeouts Timeouts, gate Gate, log events.Publisher) *Runner {
	if log == nil {
		log = events.Discard
	}
	return &Runner{
		Endpoint: endpoint,
		Identity: id,
		Duration: duration,
		Timeouts: timeouts,
		Gate:     gate,
		Log:      log,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeouts.Connect,
		},
	}
}

type frame struct {
	data []byte
	err  error
}

// Run performs one session. It never panics on network errors and always
// closes the connection it opened.
func (r *Runner) Run(ctx context.Context, t Ticket) (res Result) {
	start := time.Now()
	res.Ticket = t
	res.Reached = StateConnecting
	defer func() { res.Elapsed = time.Since(start) }()

	r.logf(events.LevelInfo, t, "connecting")

	dialCtx, cancel := context.WithTimeout(ctx, r.Timeouts.Connect)
	conn, resp, err := r.dialer.DialContext(dialCtx, r.Endpoint, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return r.fail(res, ConnectError, err)
	}
	res.Reached = StateConnected
	r.logf(events.LevelSuccess, t, "connected")

	frames := make(chan frame)
	done := make(chan struct{})
	go readFrames(conn, frames, done)
	defer func() {
		close(done)
		closeConn(conn)
		if res.Outcome == Success {
			res.Reached = StateClosed
		}
		r.logf(events.LevelInfo, t, "connection closed")
	}()

	if err := r.write(conn, newHello(r.Identity)); err != nil {
		return r.fail(res, RecvError, fmt.Errorf("sending hello: %w", err))
	}
	res.Reached = StateAwaitingHello
	r.logf(events.LevelInfo, t, "hello sent")

	f, ok := next(frames, r.Timeouts.Handshake)
	switch {
	case !ok:
		return r.fail(res, RecvError, ErrHandshakeTimeout)
	case f.err != nil:
		return r.fail(res, RecvError, fmt.Errorf("waiting for hello: %w", f.err))
	}
	if typ := gjson.GetBytes(f.data, "type").String(); typ != "hello" {
		return r.fail(res, ProtocolMismatch, fmt.Errorf("%w: type %q", ErrProtocolMismatch, typ))
	}
	res.Handshake = time.Since(start)
	r.logf(events.LevelSuccess, t, "server hello received")

	if err := r.write(conn, newListen()); err != nil {
		return r.fail(res, RecvError, fmt.Errorf("sending listen: %w", err))
	}
	res.Reached = StateListening
	r.logf(events.LevelInfo, t, "listen sent")

	res.Messages, err = r.listen(ctx, t, frames)
	if err != nil {
		res.Outcome = RecvError
		res.Err = err
		res.FailedIn, res.Reached = res.Reached, StateFailed
		r.logf(events.LevelWarning, t, "receive error: %v", err)
		r.logf(events.LevelWarning, t, "finished early, %d messages received", res.Messages)
		return res
	}
	r.logf(events.LevelSuccess, t, "finished, %d messages received", res.Messages)
	return res
}

// listen counts frames until the receive window closes or the run stops.
// Poll timeouts only re-check the stop conditions.
func (r *Runner) listen(ctx context.Context, t Ticket, frames <-chan frame) (int, error) {
	deadline := time.Now().Add(r.Duration)
	count := 0
	for r.running() && ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := r.Timeouts.Poll
		if remaining < wait {
			wait = remaining
		}

		f, ok := next(frames, wait)
		if !ok {
			continue
		}
		if f.err != nil {
			if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return count, nil
			}
			return count, f.err
		}
		count++
		if count%10 == 0 {
			r.logf(events.LevelInfo, t, "%d messages received", count)
		}
	}
	return count, nil
}

func (r *Runner) running() bool {
	return r.Gate == nil || r.Gate.Running()
}

// fail ends the session in StateFailed, remembering the stage it was in.
func (r *Runner) fail(res Result, outcome Outcome, err error) Result {
	res.Outcome = outcome
	res.Err = err
	res.FailedIn, res.Reached = res.Reached, StateFailed
	r.logf(events.LevelError, res.Ticket, "failed (%s) while %s: %v", outcome, res.FailedIn, err)
	return res
}

func (r *Runner) write(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(r.Timeouts.Handshake)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (r *Runner) logf(level events.Level, t Ticket, format string, args ...any) {
	r.Log.Publishf(level, "%s %s", t, fmt.Sprintf(format, args...))
}

// readFrames is the only reader of conn. Gorilla connections cannot be read
// again after a read deadline fires, so polling happens on the channel.
func readFrames(conn *websocket.Conn, out chan<- frame, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		select {
		case out <- frame{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func next(frames <-chan frame, timeout time.Duration) (frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-frames:
		return f, true
	case <-timer.C:
		return frame{}, false
	}
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	conn.Close()
}
