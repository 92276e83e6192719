package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"job_scrooper/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		source TEXT NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		jobs_found INTEGER NOT NULL DEFAULT 0,
		jobs_new INTEGER NOT NULL DEFAULT 0,
		jobs_duplicate INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		source TEXT NOT NULL,
		source_job_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		company TEXT NOT NULL,
		location TEXT,
		apply_url TEXT NOT NULL DEFAULT '',
		description_raw TEXT NOT NULL DEFAULT '',
		description_clean TEXT NOT NULL DEFAULT '',
		salary_min REAL,
		salary_max REAL,
		job_type TEXT,
		remote_type TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		ingested_at DATETIME NOT NULL,
		last_checked_at DATETIME,
		run_id INTEGER REFERENCES scrape_runs(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(fingerprint);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_source_id ON jobs(source, source_job_id) WHERE source_job_id != '';
	CREATE INDEX IF NOT EXISTS idx_jobs_check ON jobs(is_active, last_checked_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (source, query, status, jobs_found, jobs_new, jobs_duplicate, error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Source, run.Query, string(run.Status), run.JobsFound, run.JobsNew, run.JobsDuplicate,
		run.ErrorMessage, run.StartedAt.UTC(),
	)
	if err != nil {
		return err
	}
	run.ID, err = result.LastInsertId()
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	var completedAt *time.Time
	if run.CompletedAt != nil {
		t := run.CompletedAt.UTC()
		completedAt = &t
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs
		SET status = ?, jobs_found = ?, jobs_new = ?, jobs_duplicate = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(run.Status), run.JobsFound, run.JobsNew, run.JobsDuplicate, run.ErrorMessage, completedAt,
		run.ID, string(models.RunStatusRunning),
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunFinalized
	}
	return nil
}

func (s *SQLiteStore) ListRecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.ScrapeRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) FailRunningRuns(ctx context.Context, message string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs SET status = ?, error_message = ?, completed_at = ?
		WHERE status = ?`,
		string(models.RunStatusFailed), message, at.UTC(), string(models.RunStatusRunning),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) GetJobByFingerprint(ctx context.Context, fingerprint string) (*models.StoredJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE fingerprint = ?`, fingerprint)
	return s.scanOptionalJob(row)
}

func (s *SQLiteStore) GetJobBySourceID(ctx context.Context, source, sourceJobID string) (*models.StoredJob, error) {
	if sourceJobID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source = ? AND source_job_id = ?`, source, sourceJobID)
	return s.scanOptionalJob(row)
}

func (s *SQLiteStore) scanOptionalJob(row *sql.Row) (*models.StoredJob, error) {
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// InsertJob inserts job unless its fingerprint or (source, source_job_id)
// already exists. It reports whether a row was written.
func (s *SQLiteStore) InsertJob(ctx context.Context, job *models.StoredJob) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, jobArgs(job)...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListJobsForCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE is_active = TRUE AND apply_url != '' AND (last_checked_at IS NULL OR last_checked_at < ?)
		ORDER BY last_checked_at IS NOT NULL, last_checked_at, ingested_at
		LIMIT ?`, checkedBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.StoredJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) MarkJobChecked(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET is_active = ?, last_checked_at = ? WHERE id = ?`, active, at.UTC(), id)
	return err
}
