package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AbortedByUser is recorded on every run force-finalized by an abort.
const AbortedByUser = "Aborted by user"

// ScrapeRun is one ledger row per (query, source) pair.
type ScrapeRun struct {
	ID            int64      `json:"id" db:"id"`
	Source        string     `json:"source" db:"source"`
	Query         string     `json:"query" db:"query"`
	Status        RunStatus  `json:"status" db:"status"`
	JobsFound     int        `json:"jobs_found" db:"jobs_found"`
	JobsNew       int        `json:"jobs_new" db:"jobs_new"`
	JobsDuplicate int        `json:"jobs_duplicate" db:"jobs_duplicate"`
	ErrorMessage  *string    `json:"error_message" db:"error_message"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at" db:"completed_at"`
}

// RunCounts are the tallies written when a run completes.
type RunCounts struct {
	Found     int
	New       int
	Duplicate int
}

func (r *ScrapeRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
