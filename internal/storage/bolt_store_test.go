package storage

import (
	"os"
	"testing"
	"time"

	"wsoak/internal/runner"
)

func TestStore_ListNewestFirst(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	base := time.Now()
	for i := 1; i <= 3; i++ {
		s.RoundFinished(runner.RoundSummary{
			RunID:     "a",
			Round:     i,
			Sessions:  10,
			Started:   base.Add(time.Duration(i) * time.Second),
			Completed: true,
		})
	}
	s.RoundFinished(runner.RoundSummary{RunID: "b", Round: 1, Started: base.Add(10 * time.Second)})

	items := s.List()
	if len(items) != 4 {
		t.Fatalf("expected 4 rounds, got %d", len(items))
	}
	if items[0].RunID != "b" || items[1].Round != 3 || items[3].Round != 1 {
		t.Errorf("unexpected order: %+v", items)
	}
	if items[1].Sessions != 10 || !items[1].Completed {
		t.Errorf("summary fields not preserved: %+v", items[1])
	}

	runA := s.Runs("a")
	if len(runA) != 3 || runA[0].Round != 1 || runA[2].Round != 3 {
		t.Errorf("expected run a oldest first, got %+v", runA)
	}
}

func TestStore_CloseRemovesFile(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	path := s.Path()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected database file to be removed, stat err = %v", err)
	}
}
