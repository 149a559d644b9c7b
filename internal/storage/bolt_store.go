// Package storage keeps the round ledger of the current process in an
// ephemeral bbolt file that is removed on Close.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"wsoak/internal/runner"
	"wsoak/internal/session"
)

const (
	BucketRounds = "rounds"
)

// Store is a runner.Observer that records every finished round.
type Store struct {
	db       *bbolt.DB
	filePath string
	log      *slog.Logger
}

// NewStore creates a fresh database file under dir, or under the system temp
// directory when dir is empty.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "wsoak")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	// Create a unique file for this session
	filename := fmt.Sprintf("session_%d.db", time.Now().UnixNano())
	path := filepath.Join(dir, filename)

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRounds))
		return err
	})
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
		log:      log,
	}, nil
}

// Path is the database file location.
func (s *Store) Path() string { return s.filePath }

func (s *Store) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	// Cleanup the file for "ephemeral" session storage
	if s.filePath != "" {
		return os.Remove(s.filePath)
	}
	return nil
}

// roundKey sorts by round start time; rounds of one run never overlap.
func roundKey(sum runner.RoundSummary) []byte {
	return []byte(fmt.Sprintf("%020d/%s/%08d", sum.Started.UnixNano(), sum.RunID, sum.Round))
}

func (s *Store) Save(sum runner.RoundSummary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRounds))

		data, err := json.Marshal(sum)
		if err != nil {
			return err
		}

		return b.Put(roundKey(sum), data)
	})
}

// RoundFinished saves sum; a failed write is logged and otherwise ignored.
func (s *Store) RoundFinished(sum runner.RoundSummary) {
	if err := s.Save(sum); err != nil {
		s.log.Error("saving round summary", "run", sum.RunID, "round", sum.Round, "err", err)
	}
}

// SessionFinished is a no-op; only rounds are kept.
func (s *Store) SessionFinished(session.Result) {}

// List returns every recorded round, newest first.
func (s *Store) List() []runner.RoundSummary {
	var items []runner.RoundSummary

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRounds))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item runner.RoundSummary
			if err := json.Unmarshal(v, &item); err == nil {
				items = append(items, item)
			}
		}
		return nil
	})

	return items
}

// Runs returns the rounds of one run, oldest first.
func (s *Store) Runs(runID string) []runner.RoundSummary {
	all := s.List()
	var items []runner.RoundSummary
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].RunID == runID {
			items = append(items, all[i])
		}
	}
	return items
}
