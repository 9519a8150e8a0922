// Package journal keeps a SQLite log of validation runs and their per-asset results. It is an
// audit trail for operators; sidecars remain the source of truth and are never read from here.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetguard/internal/db"
	"github.com/openmined/assetguard/internal/engine"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    root TEXT NOT NULL,
    started_at TEXT NOT NULL, -- RFC3339Nano
    finished_at TEXT NOT NULL DEFAULT '',
    dry_run INTEGER NOT NULL,
    verify_content INTEGER NOT NULL,
    accept_modified INTEGER NOT NULL,
    canceled INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    valid INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL DEFAULT 0,
    appended INTEGER NOT NULL DEFAULT 0,
    mismatched INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    persisted INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    asset_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    action TEXT NOT NULL,
    sha256 TEXT NOT NULL DEFAULT '',
    persisted INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    took_ms INTEGER NOT NULL,
    PRIMARY KEY (run_id, asset_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_results_asset_id ON results(asset_id);
`

var ErrRunNotFound = errors.New("run not found")

// RunInfo describes a run as it starts.
type RunInfo struct {
	Root           string
	DryRun         bool
	VerifyContent  bool
	AcceptModified bool
}

// Run is one row of the runs table.
type Run struct {
	ID             string `db:"id"`
	Root           string `db:"root"`
	StartedAt      string `db:"started_at"`
	FinishedAt     string `db:"finished_at"`
	DryRun         bool   `db:"dry_run"`
	VerifyContent  bool   `db:"verify_content"`
	AcceptModified bool   `db:"accept_modified"`
	Canceled       bool   `db:"canceled"`
	Total          int    `db:"total"`
	Valid          int    `db:"valid"`
	Created        int    `db:"created"`
	Appended       int    `db:"appended"`
	Mismatched     int    `db:"mismatched"`
	Errors         int    `db:"errors"`
	Persisted      int    `db:"persisted"`
	Bytes          int64  `db:"bytes"`
}

func (r *Run) Started() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	return t
}

// Finished returns the zero time while the run is still open.
func (r *Run) Finished() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.FinishedAt)
	return t
}

// Entry is one asset result of a run.
type Entry struct {
	RunID     string `db:"run_id"`
	AssetID   string `db:"asset_id"`
	Outcome   string `db:"outcome"`
	Action    string `db:"action"`
	SHA256    string `db:"sha256"`
	Persisted bool   `db:"persisted"`
	Error     string `db:"error"`
	TookMs    int64  `db:"took_ms"`
}

type Journal struct {
	db   *sqlx.DB
	path string
}

// Open creates or opens the journal at path. db.MemoryPath gives a throwaway journal.
func Open(path string) (*Journal, error) {
	conn, err := db.Open(
		db.WithPath(path),
		db.WithMaxOpenConns(1),
		db.WithSchema(schemaVersion, schema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}

	return &Journal{db: conn, path: path}, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close run journal", "error", err)
		return err
	}
	return nil
}

func (j *Journal) Path() string {
	return j.path
}

// BeginRun records the start of a run and returns its id.
func (j *Journal) BeginRun(ctx context.Context, info RunInfo, started time.Time) (string, error) {
	run := Run{
		ID:             uuid.NewString(),
		Root:           info.Root,
		StartedAt:      started.UTC().Format(time.RFC3339Nano),
		DryRun:         info.DryRun,
		VerifyContent:  info.VerifyContent,
		AcceptModified: info.AcceptModified,
	}

	query := `INSERT INTO runs (id, root, started_at, dry_run, verify_content, accept_modified)
	          VALUES (:id, :root, :started_at, :dry_run, :verify_content, :accept_modified)`
	if _, err := j.db.NamedExecContext(ctx, query, run); err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	slog.Debug("journal run begin", "run", run.ID)
	return run.ID, nil
}

// FinishRun stores every result of report and the run summary in one transaction.
func (j *Journal) FinishRun(ctx context.Context, runID string, report *engine.Report) error {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insert, err := tx.PrepareNamedContext(ctx, `INSERT OR REPLACE INTO results
	    (run_id, asset_id, outcome, action, sha256, persisted, error, took_ms)
	    VALUES (:run_id, :asset_id, :outcome, :action, :sha256, :persisted, :error, :took_ms)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer insert.Close()

	for _, res := range report.Results {
		if _, err := insert.ExecContext(ctx, toEntry(runID, res)); err != nil {
			return fmt.Errorf("failed to record result %s: %w", res.AssetID, err)
		}
	}

	s := report.Summary()
	update := Run{
		ID:         runID,
		FinishedAt: report.Finished.UTC().Format(time.RFC3339Nano),
		Canceled:   report.Canceled,
		Total:      s.Total,
		Valid:      s.Valid,
		Created:    s.Created,
		Appended:   s.Appended,
		Mismatched: s.Mismatch,
		Errors:     s.Errors,
		Persisted:  s.Persisted,
		Bytes:      s.Bytes,
	}
	res, err := tx.NamedExecContext(ctx, `UPDATE runs SET finished_at = :finished_at, canceled = :canceled,
	    total = :total, valid = :valid, created = :created, appended = :appended,
	    mismatched = :mismatched, errors = :errors, persisted = :persisted, bytes = :bytes
	    WHERE id = :id`, update)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	slog.Debug("journal run finished", "run", runID, "results", len(report.Results))
	return nil
}

func toEntry(runID string, res *engine.Result) Entry {
	e := Entry{
		RunID:     runID,
		AssetID:   res.AssetID,
		Outcome:   "error",
		Action:    res.Action.String(),
		Persisted: res.Persisted,
		TookMs:    res.Took.Milliseconds(),
	}
	if res.Outcome != nil {
		e.Outcome = res.Outcome.Kind().String()
	}
	if res.Fingerprint != nil {
		e.SHA256 = res.Fingerprint.Digest
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// ListRuns returns the most recent runs first. limit <= 0 returns all of them.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT * FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var runs []Run
	if err := j.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := j.db.GetContext(ctx, &run, "SELECT * FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return &run, nil
}

// RunResults returns the results of one run ordered by asset id.
func (j *Journal) RunResults(ctx context.Context, runID string) ([]Entry, error) {
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries,
		"SELECT * FROM results WHERE run_id = ? ORDER BY asset_id", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of %s: %w", runID, err)
	}
	return entries, nil
}

// AssetResults returns what past runs observed for one asset, oldest first.
func (j *Journal) AssetResults(ctx context.Context, assetID string) ([]Entry, error) {
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT results.* FROM results
	    JOIN runs ON runs.id = results.run_id
	    WHERE results.asset_id = ? ORDER BY runs.started_at`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of %s: %w", assetID, err)
	}
	return entries, nil
}
