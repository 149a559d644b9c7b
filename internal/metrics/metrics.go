// Package metrics exposes session outcomes and resource samples in the
// Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wsoak/internal/monitor"
	"wsoak/internal/runner"
	"wsoak/internal/session"
)

const namespace = "wsoak"

// Exporter is both a runner.Observer and a monitor.SampleSink. It owns its
// registry so several exporters can live in one process (tests).
type Exporter struct {
	Registry *prometheus.Registry

	sessions       *prometheus.CounterVec
	messages       prometheus.Counter
	rounds         prometheus.Counter
	sessionSeconds prometheus.Histogram
	memoryMB       prometheus.Gauge
	cpuPercent     prometheus.Gauge
	processUp      prometheus.Gauge
}

func NewExporter() *Exporter {
	e := &Exporter{
		Registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Frames received after the listen frame.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_completed_total",
			Help:      "Rounds in which every worker returned without a stop.",
		}),
		sessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of one session from dial to close.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		memoryMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_memory_megabytes",
			Help:      "Resident memory of the monitored process.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_cpu_percent",
			Help:      "CPU usage of the monitored process since the previous sample.",
		}),
		processUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_up",
			Help:      "1 when a process is listening on the monitored port.",
		}),
	}

	// Every outcome shows up at zero before the first session.
	for _, o := range session.Outcomes {
		e.sessions.WithLabelValues(o.String())
	}

	e.Registry.MustRegister(
		e.sessions,
		e.messages,
		e.rounds,
		e.sessionSeconds,
		e.memoryMB,
		e.cpuPercent,
		e.processUp,
	)
	return e
}

func (e *Exporter) SessionFinished(res session.Result) {
	e.sessions.WithLabelValues(res.Outcome.String()).Inc()
	e.messages.Add(float64(res.Messages))
	e.sessionSeconds.Observe(res.Elapsed.Seconds())
}

func (e *Exporter) RoundFinished(sum runner.RoundSummary) {
	if sum.Completed {
		e.rounds.Inc()
	}
}

// RecordSample sets the target gauges. An absent process reports up=0 and
// leaves the last memory and CPU values in place.
func (e *Exporter) RecordSample(s monitor.Sample) {
	if !s.Present {
		e.processUp.Set(0)
		return
	}
	e.processUp.Set(1)
	e.memoryMB.Set(s.MemoryMB)
	e.cpuPercent.Set(s.CPUPercent)
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
