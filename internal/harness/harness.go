// Package harness wires the controller, the resource sampler and the
// observers into one process-wide instance shared by the TUI and headless
// front ends.
package harness

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"wsoak/internal/config"
	"wsoak/internal/events"
	"wsoak/internal/metrics"
	"wsoak/internal/monitor"
	"wsoak/internal/provision"
	"wsoak/internal/runner"
	"wsoak/internal/stats"
	"wsoak/internal/storage"
)

type Options struct {
	Config      config.TestConfiguration
	MetricsAddr string // empty disables /metrics
	StoreDir    string // empty uses the temp dir
	Logger      *slog.Logger
}

type Harness struct {
	Config     config.TestConfiguration
	Events     *events.Queue
	Controller *runner.Controller
	Stats      *stats.Stats
	Store      *storage.Store // nil when the ledger could not be created
	Metrics    *metrics.Exporter
	Sampler    *monitor.Sampler

	metricsAddr string
	log         *slog.Logger
}

func New(opts Options) *Harness {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &Harness{
		Config:      opts.Config,
		Events:      events.NewQueue(),
		Stats:       stats.NewStats(),
		Metrics:     metrics.NewExporter(),
		metricsAddr: opts.MetricsAddr,
		log:         log,
	}

	observers := []runner.Observer{h.Stats, h.Metrics}
	store, err := storage.NewStore(opts.StoreDir, log)
	if err != nil {
		log.Warn("round ledger disabled", "err", err)
	} else {
		h.Store = store
		observers = append(observers, store)
	}

	h.Controller = runner.NewController(provision.NewClient(provision.DefaultTimeout), h.Events, observers...)
	h.Sampler = monitor.NewSampler(opts.Config.MonitoredPort, monitor.NewProcessProber(), h.Events, h.Metrics)
	return h
}

// Background runs the event pump, the sampler and the metrics endpoint until
// ctx is done. A metrics listener that cannot bind is logged, not fatal.
func (h *Harness) Background(ctx context.Context, sinks ...events.Sink) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Events.Pump(ctx, events.DrainInterval, sinks...)
	})
	g.Go(func() error {
		return h.Sampler.Run(ctx)
	})
	if h.metricsAddr != "" {
		g.Go(func() error {
			h.log.Info("serving metrics", "addr", h.metricsAddr)
			if err := h.Metrics.Serve(ctx, h.metricsAddr); err != nil {
				h.log.Error("metrics endpoint stopped", "addr", h.metricsAddr, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Start launches a run with cfg, or with the harness config when cfg is nil.
func (h *Harness) Start(ctx context.Context, cfg *config.TestConfiguration) error {
	c := h.Config
	if cfg != nil {
		c = *cfg
	}
	return h.Controller.Start(ctx, c)
}

// Close stops any active run and removes the round ledger.
func (h *Harness) Close() error {
	h.Controller.Stop()
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}
