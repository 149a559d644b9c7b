package monitor

import (
	"context"
	"time"

	"wsoak/internal/events"
)

// SampleInterval is the fixed sampling period.
const SampleInterval = 2 * time.Second

// SampleSink receives every sample after it has been added to the history.
type SampleSink interface {
	RecordSample(Sample)
}

// Sampler polls Prober for Port forever. It is started once per process and
// is not tied to any test run.
type Sampler struct {
	Port     int
	Interval time.Duration
	Prober   Prober
	History  *History
	Sinks    []SampleSink
	Log      events.Publisher

	seen    bool
	lastPID int32
}

func NewSampler(port int, prober Prober, log events.Publisher, sinks ...SampleSink) *Sampler {
	if log == nil {
		log = events.Discard
	}
	return &Sampler{
		Port:     port,
		Interval: SampleInterval,
		Prober:   prober,
		History:  NewHistory(HistorySize),
		Sinks:    sinks,
		Log:      log,
	}
}

// Run samples immediately and then every Interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	s.Log.Publishf(events.LevelInfo, "monitoring port %d every %s", s.Port, s.Interval)
	s.tick(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.Interval)
	sample, err := s.Prober.Probe(probeCtx, s.Port)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.Log.Publishf(events.LevelWarning, "resource probe failed: %v", err)
		sample = Sample{}
	}
	sample.Time = time.Now()
	sample = s.History.Append(sample)

	s.logTransition(sample)
	for _, sink := range s.Sinks {
		sink.RecordSample(sample)
	}
}

// logTransition only speaks when the monitored process appears, disappears
// or changes.
func (s *Sampler) logTransition(sample Sample) {
	first := !s.seen
	s.seen = true
	switch {
	case sample.Present && (first || s.lastPID != sample.PID):
		s.Log.Publishf(events.LevelSuccess, "monitoring %s (pid %d) on port %d", sample.Name, sample.PID, s.Port)
	case !sample.Present && first:
		s.Log.Publishf(events.LevelWarning, "no process is listening on port %d", s.Port)
	case !sample.Present && s.lastPID != 0:
		s.Log.Publishf(events.LevelWarning, "process on port %d stopped", s.Port)
	}
	s.lastPID = sample.PID
}
