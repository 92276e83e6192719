package identity

import (
	"context"
	"fmt"

	"job_scrooper/models"
)

// JobLookup is the read side of job storage the deduplicator needs.
// Both methods return nil, nil when nothing matches.
type JobLookup interface {
	GetJobByFingerprint(ctx context.Context, fingerprint string) (*models.StoredJob, error)
	GetJobBySourceID(ctx context.Context, source, sourceJobID string) (*models.StoredJob, error)
}

// Deduplicator decides whether a normalized posting is already stored.
// A posting is a duplicate if its fingerprint matches, or if its
// (source, source_job_id) matches when the id is set. The stored record
// always wins; nothing is merged.
type Deduplicator struct {
	store JobLookup
}

func NewDeduplicator(store JobLookup) *Deduplicator {
	return &Deduplicator{store: store}
}

// Check returns whether job is a duplicate along with its fingerprint.
func (d *Deduplicator) Check(ctx context.Context, job *models.NormalizedJob) (bool, string, error) {
	fp := Fingerprint(job)

	existing, err := d.store.GetJobByFingerprint(ctx, fp)
	if err != nil {
		return false, fp, fmt.Errorf("lookup by fingerprint: %w", err)
	}
	if existing != nil {
		return true, fp, nil
	}

	if job.SourceJobID == "" {
		return false, fp, nil
	}

	existing, err = d.store.GetJobBySourceID(ctx, job.Source, job.SourceJobID)
	if err != nil {
		return false, fp, fmt.Errorf("lookup by source id: %w", err)
	}
	return existing != nil, fp, nil
}
