package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"job_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		jobs_found INTEGER NOT NULL DEFAULT 0,
		jobs_new INTEGER NOT NULL DEFAULT 0,
		jobs_duplicate INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		source TEXT NOT NULL,
		source_job_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		company TEXT NOT NULL,
		location TEXT,
		apply_url TEXT NOT NULL DEFAULT '',
		description_raw TEXT NOT NULL DEFAULT '',
		description_clean TEXT NOT NULL DEFAULT '',
		salary_min DOUBLE PRECISION,
		salary_max DOUBLE PRECISION,
		job_type TEXT,
		remote_type TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		ingested_at TIMESTAMPTZ NOT NULL,
		last_checked_at TIMESTAMPTZ,
		run_id BIGINT REFERENCES scrape_runs(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(fingerprint);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_source_id ON jobs(source, source_job_id) WHERE source_job_id <> '';
	CREATE INDEX IF NOT EXISTS idx_jobs_check ON jobs(is_active, last_checked_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Run ledger
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (source, query, status, jobs_found, jobs_new, jobs_duplicate, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	return s.pool.QueryRow(ctx, query,
		run.Source, run.Query, string(run.Status), run.JobsFound, run.JobsNew, run.JobsDuplicate,
		run.ErrorMessage, run.StartedAt,
	).Scan(&run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		UPDATE scrape_runs
		SET status = $2, jobs_found = $3, jobs_new = $4, jobs_duplicate = $5, error_message = $6, completed_at = $7
		WHERE id = $1 AND status = 'running'`
	tag, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.JobsFound, run.JobsNew, run.JobsDuplicate, run.ErrorMessage, run.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunFinalized
	}
	return nil
}

func (s *PostgresStore) ListRecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
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

func (s *PostgresStore) FailRunningRuns(ctx context.Context, message string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET status = 'failed', error_message = $1, completed_at = $2
		WHERE status = 'running'`, message, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *PostgresStore) GetJobByFingerprint(ctx context.Context, fingerprint string) (*models.StoredJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE fingerprint = $1`, fingerprint)
	return scanOptionalPgJob(row)
}

func (s *PostgresStore) GetJobBySourceID(ctx context.Context, source, sourceJobID string) (*models.StoredJob, error) {
	if sourceJobID == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source = $1 AND source_job_id = $2`, source, sourceJobID)
	return scanOptionalPgJob(row)
}

func scanOptionalPgJob(row pgx.Row) (*models.StoredJob, error) {
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// InsertJob inserts job unless a unique index (fingerprint, or source id
// when set) rejects it, and reports whether a row was written.
func (s *PostgresStore) InsertJob(ctx context.Context, job *models.StoredJob) (bool, error) {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, jobArgs(job)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListJobsForCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE is_active AND apply_url <> '' AND (last_checked_at IS NULL OR last_checked_at < $1)
		ORDER BY last_checked_at NULLS FIRST, ingested_at
		LIMIT $2`, checkedBefore, limit)
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

func (s *PostgresStore) MarkJobChecked(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET is_active = $2, last_checked_at = $3 WHERE id = $1`, id, active, at)
	return err
}
