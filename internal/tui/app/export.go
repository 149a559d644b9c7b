package app

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"wsoak/internal/runner"
)

// ExportCSV writes the round ledger as one row per round.
func ExportCSV(rounds []runner.RoundSummary, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"started", "finished", "elapsedMs", "runId", "round", "clients",
		"sessions", "success", "failures", "messages", "completed",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range rounds {
		record := []string{
			strconv.FormatInt(r.Started.UnixMilli(), 10),
			strconv.FormatInt(r.Finished.UnixMilli(), 10),
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
			r.RunID,
			strconv.Itoa(r.Round),
			strconv.Itoa(r.Clients),
			strconv.Itoa(r.Sessions),
			strconv.Itoa(r.Success),
			strconv.Itoa(r.Failures),
			strconv.Itoa(r.Messages),
			strconv.FormatBool(r.Completed),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ExportJSON writes the round ledger as an indented JSON array.
func ExportJSON(rounds []runner.RoundSummary, filename string) error {
	data, err := json.MarshalIndent(rounds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
