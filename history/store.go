// Package history keeps a SQLite ledger of runs and the outcome of every
// video each run touched.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is the result recorded for one video.
type Status string

const (
	StatusWatched    Status = "watched"
	StatusStalled    Status = "stalled"
	StatusFailed     Status = "failed"
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
)

type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
	Outcomes   int
}

type Outcome struct {
	ID         int64
	RunID      string
	Course     string
	Vod        string
	Link       string
	Status     Status
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	course      TEXT NOT NULL,
	vod         TEXT NOT NULL,
	link        TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// Workers record concurrently; one connection serializes the writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history database: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun records a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, mode string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)`,
		id, mode, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run as ok, or as failed with runErr's message.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status, msg := "ok", ""
	if runErr != nil {
		status, msg = "failed", runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		formatTime(s.now()), status, msg, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Record appends one outcome to its run.
func (s *Store) Record(ctx context.Context, o Outcome) error {
	if o.FinishedAt.IsZero() {
		o.FinishedAt = s.now()
	}
	if o.StartedAt.IsZero() {
		o.StartedAt = o.FinishedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, course, vod, link, status, detail, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Course, o.Vod, o.Link, string(o.Status), o.Detail,
		formatTime(o.StartedAt), formatTime(o.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.mode, r.started_at, r.finished_at, r.status, r.error,
		       (SELECT COUNT(*) FROM outcomes o WHERE o.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished, &r.Status, &r.Error, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(started)
		if finished.Valid {
			r.FinishedAt = parseTime(finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns a run's outcomes in recording order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, course, vod, link, status, detail, started_at, finished_at
		FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                 Outcome
			status            string
			started, finished string
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.Course, &o.Vod, &o.Link, &status, &o.Detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = Status(status)
		o.StartedAt = parseTime(started)
		o.FinishedAt = parseTime(finished)
		out = append(out, o)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
