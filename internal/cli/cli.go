// Package cli runs a soak test without the TUI: events go to the console
// logger and a status line is printed periodically.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"wsoak/internal/config"
	"wsoak/internal/harness"
	"wsoak/internal/logging"
	"wsoak/internal/monitor"
)

const (
	statusInterval = 5 * time.Second
	summaryRounds  = 10
)

// Start runs until ctx is done, runFor elapses (when positive) or
// provisioning fails. It then stops the run, waits for in-flight sessions
// and prints a summary to out.
func Start(ctx context.Context, h *harness.Harness, runFor time.Duration, logger *slog.Logger, out io.Writer) error {
	printHeader(out, h.Config, runFor)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	bgDone := make(chan error, 1)
	go func() { bgDone <- h.Background(bgCtx, logging.ConsoleSink{Logger: logger}) }()
	defer func() {
		stopBackground()
		<-bgDone
	}()

	if err := h.Start(context.Background(), nil); err != nil {
		return err
	}
	run := h.Controller.Current()

	startTime := time.Now()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if runFor > 0 {
		timer := time.NewTimer(runFor)
		defer timer.Stop()
		deadline = timer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			h.Controller.Stop()
			break loop
		case <-deadline:
			h.Controller.Stop()
			break loop
		case <-run.Done():
			break loop
		case <-ticker.C:
			printStatus(out, h, time.Since(startTime))
		}
	}

	if h.Controller.Inflight() > 0 {
		fmt.Fprintf(out, "Draining: %d clients still in a session...\n", h.Controller.Inflight())
	}
	err := h.Controller.Wait()

	printSummary(out, h, time.Since(startTime))
	printRounds(out, h, run.ID)
	return err
}

func printHeader(out io.Writer, cfg config.TestConfiguration, runFor time.Duration) {
	fmt.Fprintf(out, "\n🚀 STARTING WSOAK SOAK TEST\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Provisioning : %s\n", cfg.ProvisioningURL)
	fmt.Fprintf(out, "Device / Cli : %s / %s\n", cfg.DeviceID, cfg.ClientID)
	fmt.Fprintf(out, "Clients      : %d x %d sessions per round\n", cfg.ClientCount, cfg.RequestsPerRound)
	fmt.Fprintf(out, "Session      : %ds listen, %ds rest between rounds\n", cfg.SessionDurationSeconds, cfg.RestSeconds)
	fmt.Fprintf(out, "Monitoring   : port %d\n", cfg.MonitoredPort)
	if runFor > 0 {
		fmt.Fprintf(out, "Run for      : %s\n", runFor)
	} else {
		fmt.Fprintf(out, "Run for      : until interrupted\n")
	}
	fmt.Fprintf(out, "======================================================================\n\n")
}

func printStatus(out io.Writer, h *harness.Harness, elapsed time.Duration) {
	snap := h.Stats.Snapshot(h.Controller)
	fmt.Fprintf(out, "%s | Round %d | Active: %3d | OK: %d | Err: %d | Msgs: %d | %s\n",
		elapsed.Round(time.Second),
		snap.Round,
		snap.Inflight,
		snap.Success,
		snap.Fail,
		snap.Messages,
		resourceLine(h.Sampler.History),
	)
}

func resourceLine(hist *monitor.History) string {
	s, ok := hist.Latest()
	switch {
	case !ok:
		return "target: not sampled yet"
	case !s.Present:
		return "target: process stopped"
	default:
		return fmt.Sprintf("target: %.1f MB, %.1f%% CPU", s.MemoryMB, s.CPUPercent)
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printSummary(out io.Writer, h *harness.Harness, totalTime time.Duration) {
	snap := h.Stats.Snapshot(h.Controller)

	fmt.Fprintf(out, "\n\n📊 SOAK TEST RESULTS\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Total Duration : %s\n", totalTime.Round(time.Second))
	fmt.Fprintf(out, "Rounds         : %d completed, stopped in round %d\n", snap.Rounds, snap.Round)
	fmt.Fprintf(out, "Sessions       : %d\n", snap.Sessions)
	fmt.Fprintf(out, "Success        : %d %s\n", snap.Success, progressBar(successRatio(snap.Success, snap.Sessions), 20))
	fmt.Fprintf(out, "Failures       : %d (%.2f%%)\n", snap.Fail, snap.ErrorRate)
	fmt.Fprintf(out, "Messages       : %d (%.1f per successful session)\n", snap.Messages, snap.MeanMessages)
	fmt.Fprintf(out, "\n⏱️  SESSION TIMES (ms)\n")
	fmt.Fprintf(out, "   P50 : %.2f\n", snap.P50SessionMs)
	fmt.Fprintf(out, "   P90 : %.2f\n", snap.P90SessionMs)
	fmt.Fprintf(out, "   P99 : %.2f\n", snap.P99SessionMs)
	fmt.Fprintf(out, "   Max : %.2f\n", snap.MaxSessionMs)
	fmt.Fprintf(out, "   Handshake P50 : %.2f\n", snap.P50HandshakeMs)

	if mem, cpu := h.Sampler.History.Peak(); mem > 0 || cpu > 0 {
		fmt.Fprintf(out, "\n🖥️  TARGET PROCESS (port %d)\n", h.Config.MonitoredPort)
		fmt.Fprintf(out, "   Peak memory : %.1f MB\n", mem)
		fmt.Fprintf(out, "   Peak CPU    : %.1f%%\n", cpu)
	}

	errCounts := h.Stats.GetErrorCounts()
	if len(errCounts) > 0 {
		fmt.Fprintf(out, "\n❌ FAILURE SUMMARY\n")
		for _, e := range errCounts {
			fmt.Fprintf(out, "   %d x %s\n", e.Count, e.Reason)
		}
	}
	fmt.Fprintf(out, "======================================================================\n")
}

// printRounds lists the latest rounds of runID from the ledger, which may
// also hold rounds of earlier runs.
func printRounds(out io.Writer, h *harness.Harness, runID string) {
	if h.Store == nil {
		return
	}
	rounds := h.Store.Runs(runID)
	if len(rounds) == 0 {
		return
	}

	fmt.Fprintf(out, "\n🔁 ROUNDS OF RUN %s\n", runID)
	if skipped := len(rounds) - summaryRounds; skipped > 0 {
		fmt.Fprintf(out, "   (%d earlier rounds not shown)\n", skipped)
		rounds = rounds[skipped:]
	}
	for _, r := range rounds {
		status := "complete"
		if !r.Completed {
			status = "cut short"
		}
		fmt.Fprintf(out, "   #%-4d %d/%d ok  %d msgs  %s  %s\n",
			r.Round, r.Success, r.Sessions, r.Messages, r.Elapsed.Round(time.Millisecond), status)
	}
}

func successRatio(ok, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
