package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"wsoak/internal/dummy"
)

type flag struct{ v atomic.Bool }

func (f *flag) Running() bool { return f.v.Load() }

func running() *flag {
	f := &flag{}
	f.v.Store(true)
	return f
}

func startServer(t *testing.T, cfg dummy.ServerConfig) (*dummy.Server, string) {
	t.Helper()
	d := dummy.New(cfg)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return d, "ws" + strings.TrimPrefix(srv.URL, "http") + dummy.WSPath
}

func fastTimeouts() Timeouts {
	return Timeouts{Connect: 2 * time.Second, Handshake: 500 * time.Millisecond, Poll: 50 * time.Millisecond}
}

func TestRun_Success(t *testing.T) {
	d, endpoint := startServer(t, dummy.ServerConfig{Interval: 10 * time.Millisecond, Frames: 5})
	r := NewRunner(endpoint, NewIdentity("AA:BB"), 5*time.Second, fastTimeouts(), running(), nil)

	res := r.Run(context.Background(), Ticket{Round: 1, Client: 2, Request: 3})

	if res.Outcome != Success {
		t.Fatalf("expected success, got %v (%v)", res.Outcome, res.Err)
	}
	if res.Messages != 5 {
		t.Errorf("expected 5 messages, got %d", res.Messages)
	}
	if res.Reached != StateClosed {
		t.Errorf("expected closed state, got %v", res.Reached)
	}
	if res.Handshake <= 0 || res.Handshake > res.Elapsed {
		t.Errorf("handshake %v not within elapsed %v", res.Handshake, res.Elapsed)
	}

	got := d.Received()
	if len(got) < 2 {
		t.Fatalf("expected hello and listen, got %v", got)
	}
	hello := gjson.Parse(got[0])
	if hello.Get("type").String() != "hello" || hello.Get("device_mac").String() != "AA:BB" {
		t.Errorf("unexpected hello %s", got[0])
	}
	if !hello.Get("features.mcp").Bool() {
		t.Errorf("hello should advertise mcp: %s", got[0])
	}
	listen := gjson.Parse(got[1])
	if listen.Get("type").String() != "listen" || listen.Get("text").String() != ListenText {
		t.Errorf("unexpected listen %s", got[1])
	}
}

func TestRun_StopsAtDuration(t *testing.T) {
	_, endpoint := startServer(t, dummy.ServerConfig{Interval: 20 * time.Millisecond})
	r := NewRunner(endpoint, NewIdentity("AA:BB"), 300*time.Millisecond, fastTimeouts(), running(), nil)

	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if res.Outcome != Success {
		t.Fatalf("expected success, got %v (%v)", res.Outcome, res.Err)
	}
	if res.Messages == 0 {
		t.Errorf("expected some messages in the window")
	}
	if res.Elapsed > 2*time.Second {
		t.Errorf("session overran its window: %v", res.Elapsed)
	}
}

func TestRun_ProtocolMismatch(t *testing.T) {
	d, endpoint := startServer(t, dummy.ServerConfig{Reply: dummy.ReplyMismatch})
	r := NewRunner(endpoint, NewIdentity("AA:BB"), time.Second, fastTimeouts(), running(), nil)

	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if res.Outcome != ProtocolMismatch {
		t.Fatalf("expected protocol mismatch, got %v (%v)", res.Outcome, res.Err)
	}
	if !errors.Is(res.Err, ErrProtocolMismatch) {
		t.Errorf("expected ErrProtocolMismatch, got %v", res.Err)
	}
	if res.Messages != 0 {
		t.Errorf("expected no messages, got %d", res.Messages)
	}
	for _, msg := range d.Received() {
		if gjson.Get(msg, "type").String() == "listen" {
			t.Errorf("listen must not be sent after a mismatched hello")
		}
	}
}

func TestRun_HandshakeTimeout(t *testing.T) {
	_, endpoint := startServer(t, dummy.ServerConfig{Reply: dummy.ReplyNone})
	timeouts := fastTimeouts()
	timeouts.Handshake = 100 * time.Millisecond
	r := NewRunner(endpoint, NewIdentity("AA:BB"), time.Second, timeouts, running(), nil)

	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if res.Outcome != RecvError {
		t.Fatalf("expected recv error, got %v", res.Outcome)
	}
	if !errors.Is(res.Err, ErrHandshakeTimeout) {
		t.Errorf("expected ErrHandshakeTimeout, got %v", res.Err)
	}
	if res.Reached != StateFailed || res.FailedIn != StateAwaitingHello {
		t.Errorf("expected failed while awaiting-hello, got %v in %v", res.Reached, res.FailedIn)
	}
}

func TestRun_ConnectError(t *testing.T) {
	srv := httptest.NewServer(nil)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + dummy.WSPath
	srv.Close()

	r := NewRunner(endpoint, NewIdentity("AA:BB"), time.Second, fastTimeouts(), running(), nil)
	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if res.Outcome != ConnectError {
		t.Fatalf("expected connect error, got %v", res.Outcome)
	}
	if res.Reached != StateFailed || res.FailedIn != StateConnecting {
		t.Errorf("expected failed while connecting, got %v in %v", res.Reached, res.FailedIn)
	}
}

func TestRun_AbortKeepsCount(t *testing.T) {
	_, endpoint := startServer(t, dummy.ServerConfig{Interval: 10 * time.Millisecond, Frames: 3, Abort: true})
	r := NewRunner(endpoint, NewIdentity("AA:BB"), 5*time.Second, fastTimeouts(), running(), nil)

	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if res.Outcome != RecvError {
		t.Fatalf("expected recv error, got %v", res.Outcome)
	}
	if res.Messages != 3 {
		t.Errorf("expected 3 messages before the abort, got %d", res.Messages)
	}
	if res.Reached != StateFailed || res.FailedIn != StateListening {
		t.Errorf("expected failed while listening, got %v in %v", res.Reached, res.FailedIn)
	}
}

func TestRun_StopFlag(t *testing.T) {
	d, endpoint := startServer(t, dummy.ServerConfig{Interval: 20 * time.Millisecond})
	gate := running()
	r := NewRunner(endpoint, NewIdentity("AA:BB"), 30*time.Second, fastTimeouts(), gate, nil)

	time.AfterFunc(200*time.Millisecond, func() { gate.v.Store(false) })

	start := time.Now()
	res := r.Run(context.Background(), Ticket{Round: 1, Client: 1, Request: 1})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("session ignored the stop flag for %v", elapsed)
	}
	if res.Outcome != Success {
		t.Errorf("expected success on stop, got %v (%v)", res.Outcome, res.Err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.Active() != 0 {
		t.Errorf("expected the server side to see the connection close")
	}
}

func TestTicket_String(t *testing.T) {
	got := Ticket{Round: 2, Client: 3, Request: 4}.String()
	if got != "[round 2][client 3][request 4]" {
		t.Errorf("unexpected ticket label %q", got)
	}
}
