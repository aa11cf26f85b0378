package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver using pure Go implementation.
	_ "modernc.org/sqlite"

	"github.com/incidentlens/incidentlens/internal/pipeline"
)

// deviationsPerRun caps how many ranked records are persisted per run.
// The ranked view is only interesting at the top; storing the full tail
// grows the file without adding signal.
const deviationsPerRun = 100

// RunSummary is one persisted run's metadata.
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	RowsIn      int       `json:"rows_in"`
	Kept        int       `json:"rows_kept"`
	Dropped     int       `json:"rows_dropped"`
	KeyCount    int       `json:"key_count"`
	FitFailures int       `json:"fit_failures"`
}

// Deviation is one persisted ranked record.
type Deviation struct {
	GroupKey          string  `json:"group_key"`
	Bucket            string  `json:"bucket"`
	Count             float64 `json:"count"`
	LaggingAverage    float64 `json:"lagging_average"`
	RelativeDeviation float64 `json:"relative_deviation"`
	Rank              int     `json:"rank"`
}

// Store is the SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	// The driver only understands _pragma=name(value) parameters; the
	// mattn-style _journal_mode form is silently dropped.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			rows_in       INTEGER NOT NULL,
			rows_kept     INTEGER NOT NULL,
			rows_dropped  INTEGER NOT NULL,
			key_count     INTEGER NOT NULL,
			fit_failures  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deviations (
			run_id             TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank               INTEGER NOT NULL,
			group_key          TEXT NOT NULL,
			bucket             TEXT NOT NULL,
			count              REAL NOT NULL,
			lagging_average    REAL NOT NULL,
			relative_deviation REAL NOT NULL,
			PRIMARY KEY (run_id, rank)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save persists a run and its top deviations in one transaction.
func (s *Store) Save(ctx context.Context, rep *pipeline.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, rows_in, rows_kept, rows_dropped, key_count, fit_failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID,
		rep.StartedAt.Unix(),
		rep.FinishedAt.Unix(),
		rep.RowsIn,
		rep.Kept,
		rep.Dropped,
		len(rep.Keys),
		rep.FitFailures,
	)
	if err != nil {
		return fmt.Errorf("history: insert run %s: %w", rep.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deviations (run_id, rank, group_key, bucket, count, lagging_average, relative_deviation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare deviation insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range rep.TopDeviations(deviationsPerRun) {
		if _, err := stmt.ExecContext(ctx,
			rep.RunID, i+1, d.GroupKey, d.Key, d.Count, d.LaggingAverage, d.RelativeDeviation,
		); err != nil {
			return fmt.Errorf("history: insert deviation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 means a
// sensible default of 20.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, rows_in, rows_kept, rows_dropped, key_count, fit_failures
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.RowsIn, &r.Kept, &r.Dropped, &r.KeyCount, &r.FitFailures); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Deviations returns one run's persisted ranked records, best rank first.
func (s *Store) Deviations(ctx context.Context, runID string, limit int) ([]Deviation, error) {
	if limit <= 0 {
		limit = deviationsPerRun
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_key, bucket, count, lagging_average, relative_deviation, rank
		 FROM deviations WHERE run_id = ? ORDER BY rank LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query deviations: %w", err)
	}
	defer rows.Close()

	var out []Deviation
	for rows.Next() {
		var d Deviation
		if err := rows.Scan(&d.GroupKey, &d.Bucket, &d.Count, &d.LaggingAverage, &d.RelativeDeviation, &d.Rank); err != nil {
			return nil, fmt.Errorf("history: scan deviation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs (and, via cascade, their
// deviations). keep <= 0 is a no-op.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	// Cascade requires foreign keys on; cover the default-off case too.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM deviations WHERE run_id NOT IN (SELECT id FROM runs)`)
	if err != nil {
		return fmt.Errorf("history: prune deviations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
