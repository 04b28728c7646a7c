// Package checkpoint provides the durable (run_id, step) -> state store that
// gives runs crash recovery and auditability. It is backed by SQLite in WAL
// mode; a process-wide singleton per database path ensures all callers share
// one connection pool.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is stamped into the SQLite user_version pragma.
const schemaVersion = 1

// ErrNotFound is returned when a (run_id, step) record does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// ErrDuplicateStep is returned when inserting an existing (run_id, step).
var ErrDuplicateStep = errors.New("duplicate checkpoint step")

// Record is one persisted step state.
type Record struct {
	RunID     string          `json:"run_id"`
	Step      int             `json:"step"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the durable checkpoint store.
type Store struct {
	db   *sql.DB
	path string
}

var (
	storesMu sync.Mutex
	stores   = map[string]*Store{}
)

// Open returns the process-wide store for the given database path, creating
// it on first use. The special path ":memory:" always returns a fresh store.
func Open(dbPath string) (*Store, error) {
	if dbPath == ":memory:" {
		return open(dbPath)
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolve checkpoint path: %w", err)
	}

	storesMu.Lock()
	defer storesMu.Unlock()

	if s, ok := stores[abs]; ok {
		return s, nil
	}
	s, err := open(abs)
	if err != nil {
		return nil, err
	}
	stores[abs] = s
	return s, nil
}

func open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	// WAL gives concurrent readers a consistent snapshot across writes.
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL,
		step   INTEGER NOT NULL,
		state  TEXT NOT NULL,
		ts     TEXT NOT NULL,
		PRIMARY KEY (run_id, step)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_run_step ON checkpoints(run_id, step);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init checkpoint schema: %w", err)
	}

	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}
	return nil
}

// SaveStep inserts a new record. Inserting an existing (run_id, step)
// returns ErrDuplicateStep.
func (s *Store) SaveStep(rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		"INSERT INTO checkpoints (run_id, step, state, ts) VALUES (?, ?, ?, ?)",
		rec.RunID, rec.Step, string(rec.State), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: run %s step %d", ErrDuplicateStep, rec.RunID, rec.Step)
		}
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// GetSteps returns all records for a run ordered by step. An unknown run
// yields an empty slice.
func (s *Store) GetSteps(runID string) ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT run_id, step, state, ts FROM checkpoints WHERE run_id = ? ORDER BY step",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var state, ts string
		if err := rows.Scan(&rec.RunID, &rec.Step, &state, &ts); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		rec.State = json.RawMessage(state)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateStep replaces the state of an existing record.
func (s *Store) UpdateStep(runID string, step int, state json.RawMessage) error {
	res, err := s.db.Exec(
		"UPDATE checkpoints SET state = ? WHERE run_id = ? AND step = ?",
		string(state), runID, step,
	)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s step %d", ErrNotFound, runID, step)
	}
	return nil
}

// DeleteStep removes a single record.
func (s *Store) DeleteStep(runID string, step int) error {
	res, err := s.db.Exec("DELETE FROM checkpoints WHERE run_id = ? AND step = ?", runID, step)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s step %d", ErrNotFound, runID, step)
	}
	return nil
}

// DeleteRun removes all records for a run. Deleting an unknown run is not
// an error.
func (s *Store) DeleteRun(runID string) error {
	if _, err := s.db.Exec("DELETE FROM checkpoints WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("delete run checkpoints: %w", err)
	}
	return nil
}

// ListRuns returns the distinct run IDs with their step counts and latest
// timestamps, newest first.
type RunSummary struct {
	RunID    string
	Steps    int
	LatestTS time.Time
}

func (s *Store) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(
		"SELECT run_id, COUNT(*), MAX(ts) FROM checkpoints GROUP BY run_id ORDER BY MAX(ts) DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var ts string
		if err := rows.Scan(&rs.RunID, &rs.Steps, &ts); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rs.LatestTS = t
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// ClearAll removes every checkpoint. Administrative use only.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec("DELETE FROM checkpoints"); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}

// Close releases the underlying database. The singleton entry is removed so
// a later Open reopens the file.
func (s *Store) Close() error {
	storesMu.Lock()
	for k, v := range stores {
		if v == s {
			delete(stores, k)
		}
	}
	storesMu.Unlock()
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint violations in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
