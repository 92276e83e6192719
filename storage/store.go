package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"job_scrooper/config"
	"job_scrooper/models"
)

// ErrRunFinalized is returned when finishing a run that is no longer
// running, e.g. because an abort got to it first.
var ErrRunFinalized = errors.New("run already finalized")

// Store persists the run ledger and ingested jobs. Lookups return nil, nil
// when nothing matches.
type Store interface {
	CreateRun(ctx context.Context, run *models.ScrapeRun) error
	FinishRun(ctx context.Context, run *models.ScrapeRun) error
	ListRecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	FailRunningRuns(ctx context.Context, message string, at time.Time) (int64, error)

	GetJobByFingerprint(ctx context.Context, fingerprint string) (*models.StoredJob, error)
	GetJobBySourceID(ctx context.Context, source, sourceJobID string) (*models.StoredJob, error)
	InsertJob(ctx context.Context, job *models.StoredJob) (bool, error)
	ListJobsForCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredJob, error)
	MarkJobChecked(ctx context.Context, id uuid.UUID, active bool, at time.Time) error

	Close() error
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg config.DBConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.Path)
	case "postgres", "postgresql", "pgx":
		if cfg.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for driver %q", cfg.Driver)
		}
		return NewPostgresStore(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, source, query, status, jobs_found, jobs_new, jobs_duplicate, error_message, started_at, completed_at`

func scanRun(row rowScanner) (*models.ScrapeRun, error) {
	var r models.ScrapeRun
	var status string
	if err := row.Scan(&r.ID, &r.Source, &r.Query, &status, &r.JobsFound, &r.JobsNew,
		&r.JobsDuplicate, &r.ErrorMessage, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Status = models.RunStatus(status)
	return &r, nil
}

const jobColumns = `id, fingerprint, source, source_job_id, title, company, location, apply_url,
	description_raw, description_clean, salary_min, salary_max, job_type, remote_type,
	is_active, ingested_at, last_checked_at, run_id`

func scanJob(row rowScanner) (*models.StoredJob, error) {
	var j models.StoredJob
	var jobType, remoteType *string
	if err := row.Scan(&j.ID, &j.Fingerprint, &j.Source, &j.SourceJobID, &j.Title, &j.Company,
		&j.Location, &j.ApplyURL, &j.DescriptionRaw, &j.DescriptionClean, &j.SalaryMin, &j.SalaryMax,
		&jobType, &remoteType, &j.IsActive, &j.IngestedAt, &j.LastCheckedAt, &j.RunID); err != nil {
		return nil, err
	}
	if jobType != nil {
		jt := models.JobType(*jobType)
		j.JobType = &jt
	}
	if remoteType != nil {
		rt := models.RemoteType(*remoteType)
		j.RemoteType = &rt
	}
	return &j, nil
}

// jobArgs returns the insert arguments in jobColumns order.
func jobArgs(j *models.StoredJob) []any {
	var jobType, remoteType *string
	if j.JobType != nil {
		s := string(*j.JobType)
		jobType = &s
	}
	if j.RemoteType != nil {
		s := string(*j.RemoteType)
		remoteType = &s
	}
	return []any{
		j.ID, j.Fingerprint, j.Source, j.SourceJobID, j.Title, j.Company, j.Location, j.ApplyURL,
		j.DescriptionRaw, j.DescriptionClean, j.SalaryMin, j.SalaryMax, jobType, remoteType,
		j.IsActive, j.IngestedAt, j.LastCheckedAt, j.RunID,
	}
}
