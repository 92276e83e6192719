package scraper

import (
	"context"
	"errors"
	"time"

	"job_scrooper/apify"
	"job_scrooper/logging"
	"job_scrooper/models"
	"job_scrooper/storage"
)

// RunStore is the slice of storage the ledger writes to.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.ScrapeRun) error
	FinishRun(ctx context.Context, run *models.ScrapeRun) error
	ListRecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	FailRunningRuns(ctx context.Context, message string, at time.Time) (int64, error)
}

// RemoteAborter cancels actor runs still executing on the host.
// *apify.Client satisfies it.
type RemoteAborter interface {
	RunningRuns(ctx context.Context, actorID string) ([]apify.Run, error)
	Abort(ctx context.Context, runID string) error
}

const remoteAbortTimeout = 30 * time.Second

// Ledger records one row per (query, source) pair. A row starts running
// and is moved to completed or failed exactly once.
type Ledger struct {
	store   RunStore
	aborter RemoteAborter
	actors  []string
	now     func() time.Time
}

func NewLedger(store RunStore, aborter RemoteAborter, actors []string) *Ledger {
	return &Ledger{
		store:   store,
		aborter: aborter,
		actors:  actors,
		now:     time.Now,
	}
}

func (l *Ledger) Open(ctx context.Context, source, query string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{
		Source:    source,
		Query:     query,
		Status:    models.RunStatusRunning,
		StartedAt: l.now().UTC(),
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (l *Ledger) Complete(ctx context.Context, run *models.ScrapeRun, counts models.RunCounts) error {
	if run.IsTerminal() {
		return storage.ErrRunFinalized
	}
	run.Status = models.RunStatusCompleted
	run.JobsFound = counts.Found
	run.JobsNew = counts.New
	run.JobsDuplicate = counts.Duplicate
	return l.finish(ctx, run)
}

func (l *Ledger) Fail(ctx context.Context, run *models.ScrapeRun, cause error) error {
	if run.IsTerminal() {
		return storage.ErrRunFinalized
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &msg
	return l.finish(ctx, run)
}

func (l *Ledger) finish(ctx context.Context, run *models.ScrapeRun) error {
	now := l.now().UTC()
	run.CompletedAt = &now
	return l.store.FinishRun(ctx, run)
}

func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	return l.store.ListRecentRuns(ctx, limit)
}

// Abort force-fails every running row, then asks the actor host to stop
// whatever it still reports as running. The remote part runs detached and
// its failures are only logged.
func (l *Ledger) Abort(ctx context.Context) (int64, error) {
	n, err := l.store.FailRunningRuns(ctx, models.AbortedByUser, l.now().UTC())
	if err != nil {
		return 0, err
	}
	logging.Logf(models.LogLevelWarn, "ledger", "aborted %d running runs", n)

	if l.aborter != nil && len(l.actors) > 0 {
		go l.abortRemote()
	}
	return n, nil
}

func (l *Ledger) abortRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), remoteAbortTimeout)
	defer cancel()

	for _, actor := range l.actors {
		runs, err := l.aborter.RunningRuns(ctx, actor)
		if err != nil {
			logging.Logf(models.LogLevelWarn, "ledger", "list running runs for %s: %v", actor, err)
			continue
		}
		for _, run := range runs {
			if err := l.aborter.Abort(ctx, run.ID); err != nil {
				logging.Logf(models.LogLevelWarn, "ledger", "abort actor run %s: %v", run.ID, err)
				continue
			}
			logging.Logf(models.LogLevelInfo, "ledger", "requested abort of actor run %s (%s)", run.ID, actor)
		}
	}
}

// IsFinalized reports whether err means the run was already terminal.
func IsFinalized(err error) bool {
	return errors.Is(err, storage.ErrRunFinalized)
}
