package harness

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wsoak/internal/config"
	"wsoak/internal/dummy"
	"wsoak/internal/events"
	"wsoak/internal/runner"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) HandleLog(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

// A full run against the mock device server: provisioning, two rounds of
// real WebSocket sessions, stop, and the observers all agreeing.
func TestHarness_EndToEnd(t *testing.T) {
	d := dummy.New(dummy.ServerConfig{Interval: 10 * time.Millisecond, Frames: 3})
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.ProvisioningURL = srv.URL + dummy.ProvisionPath
	cfg.ClientCount = 2
	cfg.RequestsPerRound = 2
	cfg.SessionDurationSeconds = 2
	cfg.RestSeconds = 0

	h := New(Options{Config: cfg, StoreDir: t.TempDir()})
	defer h.Close()
	h.Controller.Pacing = runner.Pacing{StartStagger: time.Millisecond, CycleDelay: time.Millisecond, RestTick: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &collector{}
	bgDone := make(chan struct{})
	go func() {
		h.Background(ctx, sink)
		close(bgDone)
	}()

	if err := h.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for atomic.LoadUint64(&h.Stats.Rounds) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.Controller.Stop()
	if err := h.Controller.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	cancel()
	<-bgDone

	if h.Stats.Rounds < 2 {
		t.Fatalf("expected at least 2 completed rounds, got %d", h.Stats.Rounds)
	}
	if h.Stats.Fail != 0 {
		t.Errorf("expected no failures, got %d: %+v", h.Stats.Fail, h.Stats.GetErrorCounts())
	}
	if h.Stats.Success == 0 || h.Stats.Messages == 0 || h.Stats.Messages > 3*h.Stats.Success {
		t.Errorf("expected up to 3 messages per session, got %d messages for %d sessions", h.Stats.Messages, h.Stats.Success)
	}
	if got := len(h.Store.List()); got < 2 {
		t.Errorf("expected the ledger to hold the rounds, got %d", got)
	}

	logged := sink.all()
	if len(logged) == 0 {
		t.Fatal("no events reached the sink")
	}
	for i := 1; i < len(logged); i++ {
		if logged[i].Seq <= logged[i-1].Seq {
			t.Fatalf("events out of order at %d: %d after %d", i, logged[i].Seq, logged[i-1].Seq)
		}
	}
}

func TestHarness_ProvisioningFailure(t *testing.T) {
	srv := httptest.NewServer(nil) // 404 for everything
	defer srv.Close()

	cfg := config.Default()
	cfg.ProvisioningURL = srv.URL + dummy.ProvisionPath

	h := New(Options{Config: cfg, StoreDir: t.TempDir()})
	defer h.Close()

	if err := h.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Controller.Wait(); err == nil {
		t.Fatal("expected a provisioning error")
	}
	if h.Stats.Sessions != 0 {
		t.Errorf("expected no sessions, got %d", h.Stats.Sessions)
	}
	if h.Controller.Running() {
		t.Errorf("controller should be idle")
	}
}
