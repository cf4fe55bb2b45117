// Package store keeps a history of finished runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/loop"
)

// ErrNotFound is returned by Get when no run has the given ID.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	reason TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	max_iterations INTEGER NOT NULL DEFAULT 0,
	completion_rate REAL NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	state_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

// Run is one recorded run. State is only populated by Get.
type Run struct {
	ID             string       `json:"id"`
	Goal           string       `json:"goal"`
	Reason         string       `json:"reason"`
	Iterations     int          `json:"iterations"`
	MaxIterations  int          `json:"max_iterations"`
	CompletionRate float64      `json:"completion_rate"`
	Summary        string       `json:"summary,omitempty"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	State          *agent.State `json:"state,omitempty"`
}

// Snapshot rebuilds the controller snapshot the run ended with.
func (r Run) Snapshot() loop.Snapshot {
	var reason loop.ExitReason
	_ = reason.UnmarshalText([]byte(r.Reason))
	return loop.Snapshot{
		RunID:         r.ID,
		Phase:         loop.PhaseIdle,
		MaxIterations: r.MaxIterations,
		State:         r.State,
		Result: &loop.Result{
			RunID:      r.ID,
			Reason:     reason,
			Iterations: r.Iterations,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Error:      r.Error,
		},
	}
}

// RunFromSnapshot converts a finished snapshot into a Run.
func RunFromSnapshot(snap loop.Snapshot) (Run, error) {
	if snap.Result == nil {
		return Run{}, errors.New("snapshot has no result")
	}
	res := snap.Result
	run := Run{
		ID:            snap.RunID,
		Reason:        res.Reason.String(),
		Iterations:    res.Iterations,
		MaxIterations: snap.MaxIterations,
		Error:         res.Error,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	if run.ID == "" {
		run.ID = res.RunID
	}
	if snap.State != nil {
		st := *snap.State
		run.Goal = st.Goal
		run.CompletionRate = st.Metrics.CompletionRate
		run.Summary = st.ResultSummary
		run.State = &st
	}
	return run, nil
}

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path. Use
// MemoryPath for a throwaway database.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun implements loop.Recorder.
func (s *Store) RecordRun(ctx context.Context, snap loop.Snapshot) error {
	run, err := RunFromSnapshot(snap)
	if err != nil {
		return err
	}
	return s.Record(ctx, run)
}

// Record inserts run, replacing any earlier row with the same ID.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run ID is required")
	}

	var stateJSON sql.NullString
	if run.State != nil {
		data, err := json.Marshal(run.State)
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		stateJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, goal, reason, iterations, max_iterations, completion_rate, summary, error, started_at, finished_at, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Goal, run.Reason, run.Iterations, run.MaxIterations, run.CompletionRate,
		run.Summary, run.Error, formatTime(run.StartedAt), formatTime(run.FinishedAt), stateJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recently finished runs first, without their state.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, reason, iterations, max_iterations, completion_rate, summary, error, started_at, finished_at
		FROM runs
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run               Run
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.Goal, &run.Reason, &run.Iterations, &run.MaxIterations,
			&run.CompletionRate, &run.Summary, &run.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID including its final state.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var (
		run               Run
		started, finished string
		stateJSON         sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, goal, reason, iterations, max_iterations, completion_rate, summary, error, started_at, finished_at, state_json
		FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &run.Goal, &run.Reason, &run.Iterations, &run.MaxIterations,
		&run.CompletionRate, &run.Summary, &run.Error, &started, &finished, &stateJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	if stateJSON.Valid && stateJSON.String != "" {
		var st agent.State
		if err := json.Unmarshal([]byte(stateJSON.String), &st); err != nil {
			return Run{}, fmt.Errorf("failed to decode state for run %s: %w", id, err)
		}
		run.State = &st
	}
	return run, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
