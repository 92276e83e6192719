package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SourceIndeed   = "indeed"
	SourceLinkedIn = "linkedin"
)

type JobType string

const (
	JobTypeFullTime   JobType = "full-time"
	JobTypePartTime   JobType = "part-time"
	JobTypeContract   JobType = "contract"
	JobTypeTemporary  JobType = "temporary"
	JobTypeInternship JobType = "internship"
)

type RemoteType string

const (
	RemoteTypeRemote RemoteType = "remote"
	RemoteTypeHybrid RemoteType = "hybrid"
	RemoteTypeOnsite RemoteType = "onsite"
)

// RawItem is an untrusted record returned by an actor, tagged with the
// source that produced it. It is never persisted.
type RawItem struct {
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// NormalizedJob is the canonical posting shape produced by the normalizer.
type NormalizedJob struct {
	Source           string      `json:"source"`
	SourceJobID      string      `json:"source_job_id"`
	Title            string      `json:"title"`
	Company          string      `json:"company"`
	Location         *string     `json:"location"`
	ApplyURL         string      `json:"apply_url"`
	DescriptionRaw   string      `json:"description_raw"`
	DescriptionClean string      `json:"description_clean"`
	SalaryMin        *float64    `json:"salary_min"`
	SalaryMax        *float64    `json:"salary_max"`
	JobType          *JobType    `json:"job_type"`
	RemoteType       *RemoteType `json:"remote_type"`
}

// LocationOrEmpty returns the location or "" when unknown.
func (j *NormalizedJob) LocationOrEmpty() string {
	if j.Location == nil {
		return ""
	}
	return *j.Location
}

// StoredJob is a persisted posting. Identity is the fingerprint, with
// (Source, SourceJobID) as an alternate key when SourceJobID is set.
type StoredJob struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	NormalizedJob
	IsActive      bool       `json:"is_active" db:"is_active"`
	IngestedAt    time.Time  `json:"ingested_at" db:"ingested_at"`
	LastCheckedAt *time.Time `json:"last_checked_at" db:"last_checked_at"`
	RunID         *int64     `json:"run_id" db:"run_id"`
}

// NewStoredJob wraps a normalized posting for insertion.
func NewStoredJob(job *NormalizedJob, fingerprint string, runID *int64) *StoredJob {
	return &StoredJob{
		ID:            uuid.New(),
		Fingerprint:   fingerprint,
		NormalizedJob: *job,
		IsActive:      true,
		IngestedAt:    time.Now().UTC(),
		RunID:         runID,
	}
}
