package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_TotalOrderAcrossProducers(t *testing.T) {
	q := NewQueue()

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Publishf(LevelInfo, "p%d-%d", id, i)
			}
		}(p)
	}
	wg.Wait()

	events := q.Drain()
	if len(events) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(events))
	}

	// Sequence numbers are strictly increasing and each producer's events
	// keep their relative order.
	last := make(map[string]int)
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, e.Seq)
		}
		var id, n int
		if _, err := fmt.Sscanf(e.Message, "p%d-%d", &id, &n); err != nil {
			t.Fatalf("unexpected message %q", e.Message)
		}
		key := fmt.Sprint(id)
		if prev, ok := last[key]; ok && n <= prev {
			t.Errorf("producer %d out of order: %d after %d", id, n, prev)
		}
		last[key] = n
	}

	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d", q.Len())
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := NewQueue()
	if got := q.Drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %v", got)
	}
}

func TestPump_DeliversInOrderAndFlushesOnStop(t *testing.T) {
	q := NewQueue()

	var mu sync.Mutex
	var got []Event
	sink := SinkFunc(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Pump(ctx, 5*time.Millisecond, sink)
		close(done)
	}()

	q.Publish(LevelInfo, "one")
	q.Publish(LevelSuccess, "two")
	time.Sleep(30 * time.Millisecond)
	q.Publish(LevelError, "three")
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	want := []string{"one", "two", "three"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], e.Message)
		}
	}
	if got[2].Level != LevelError {
		t.Errorf("expected ERROR level, got %v", got[2].Level)
	}
}

func TestLevel_String(t *testing.T) {
	tests := map[Level]string{
		LevelInfo:    "INFO",
		LevelSuccess: "SUCCESS",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
		Level(9):     "LEVEL(9)",
	}
	for l, want := range tests {
		if l.String() != want {
			t.Errorf("expected %s, got %s", want, l.String())
		}
	}
}
