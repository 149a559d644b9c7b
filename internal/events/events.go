// Package events carries the harness log stream: many concurrent producers
// publish into one ordered queue, a single pump drains it on a fixed interval
// and hands each event, in order, to the registered sinks.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DrainInterval is how often the pump empties the queue.
const DrainInterval = 100 * time.Millisecond

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Event is a single log line. Seq is assigned at enqueue time and gives the
// total order across producers.
type Event struct {
	Seq     uint64
	Time    time.Time
	Level   Level
	Message string
}

// Publisher is what producers hold on to.
type Publisher interface {
	Publishf(level Level, format string, args ...any)
}

// Sink consumes drained events. Sinks are called from the pump goroutine only.
type Sink interface {
	HandleLog(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) HandleLog(e Event) { f(e) }

// Discard drops everything; handy for components under test.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publishf(Level, string, ...any) {}

// Queue is an unbounded FIFO guarded by a mutex. Producers never block on the
// consumer.
type Queue struct {
	mu      sync.Mutex
	pending []Event
	seq     uint64
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Publish enqueues msg at level.
func (q *Queue) Publish(level Level, msg string) {
	q.mu.Lock()
	q.seq++
	q.pending = append(q.pending, Event{
		Seq:     q.seq,
		Time:    q.now(),
		Level:   level,
		Message: msg,
	})
	q.mu.Unlock()
}

func (q *Queue) Publishf(level Level, format string, args ...any) {
	q.Publish(level, fmt.Sprintf(format, args...))
}

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pump drains the queue every interval until ctx is done, then flushes what
// is left. It is the single consumer of q.
func (q *Queue) Pump(ctx context.Context, interval time.Duration, sinks ...Sink) error {
	if interval <= 0 {
		interval = DrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deliver := func() {
		for _, e := range q.Drain() {
			for _, s := range sinks {
				s.HandleLog(e)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			deliver()
			return nil
		case <-ticker.C:
			deliver()
		}
	}
}
