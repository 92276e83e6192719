package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"job_scrooper/config"
	"job_scrooper/identity"
	"job_scrooper/logging"
	"job_scrooper/models"
	"job_scrooper/normalize"
	"job_scrooper/services"
)

var (
	ErrMissingToken = errors.New("apify token is not configured")
	ErrEmptyRequest = errors.New("at least one query and one source are required")
)

const (
	matchTimeout    = 30 * time.Second
	finalizeTimeout = 10 * time.Second
)

// JobStore is the slice of storage the orchestrator reads and writes jobs
// through.
type JobStore interface {
	identity.JobLookup
	InsertJob(ctx context.Context, job *models.StoredJob) (bool, error)
}

type Orchestrator struct {
	token    string
	adapters map[string]Adapter
	ledger   *Ledger
	jobs     JobStore
	dedupe   *identity.Deduplicator
	matcher  services.MatchTrigger

	// onAsyncError receives failures from detached work.
	onAsyncError func(error)
}

// NewOrchestrator wires one adapter per configured source.
func NewOrchestrator(cfg *config.Config, runner ActorRunner, ledger *Ledger, jobs JobStore, matcher services.MatchTrigger) (*Orchestrator, error) {
	adapters := make(map[string]Adapter, len(cfg.Sources))
	for id, src := range cfg.Sources {
		adapter, err := NewAdapter(src, runner)
		if err != nil {
			return nil, err
		}
		adapters[id] = adapter
	}
	return newOrchestrator(cfg.Apify.Token, adapters, ledger, jobs, matcher), nil
}

func newOrchestrator(token string, adapters map[string]Adapter, ledger *Ledger, jobs JobStore, matcher services.MatchTrigger) *Orchestrator {
	if matcher == nil {
		matcher = services.LogMatchTrigger{}
	}
	return &Orchestrator{
		token:    token,
		adapters: adapters,
		ledger:   ledger,
		jobs:     jobs,
		dedupe:   identity.NewDeduplicator(jobs),
		matcher:  matcher,
		onAsyncError: func(err error) {
			logging.Logf(models.LogLevelError, "matching", "%v", err)
		},
	}
}

// Sources lists the configured source ids.
func (o *Orchestrator) Sources() []string {
	ids := make([]string, 0, len(o.adapters))
	for id := range o.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// Ingest runs every (query, source) pair in order, one at a time. A failing
// pair is recorded and does not stop the batch; only configuration errors
// abort the call before any run is opened. Cancelling ctx does not reach
// the pairs: a started batch always runs to the end.
func (o *Orchestrator) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error) {
	if o.token == "" {
		return nil, ErrMissingToken
	}
	if len(req.Queries) == 0 || len(req.Sources) == 0 {
		return nil, ErrEmptyRequest
	}

	ctx = context.WithoutCancel(ctx)
	resp := &models.IngestResponse{Results: make([]models.PairResult, 0, len(req.Queries)*len(req.Sources))}
	for _, query := range req.Queries {
		for _, source := range req.Sources {
			q := Query{Text: query, Location: req.Location, MaxResults: req.Limit()}
			result := o.runPair(ctx, source, q)
			resp.TotalNew += result.JobsNew
			resp.Results = append(resp.Results, result)
		}
	}

	switch {
	case req.SkipMatching:
		resp.Matching = models.MatchingStatus{Status: models.MatchingSkipped, Reason: models.SkipReasonRequested}
	case resp.TotalNew == 0:
		resp.Matching = models.MatchingStatus{Status: models.MatchingSkipped, Reason: models.SkipReasonNoNewJobs}
	default:
		go o.triggerMatching(resp.TotalNew)
		resp.Matching = models.MatchingStatus{Status: models.MatchingStarted}
	}

	logging.Logf(models.LogLevelInfo, "ingest", "batch done: %d pairs, %d new jobs, matching %s",
		len(resp.Results), resp.TotalNew, resp.Matching.Status)
	return resp, nil
}

func (o *Orchestrator) runPair(ctx context.Context, source string, q Query) models.PairResult {
	result := models.PairResult{Query: q.Text, Source: source}

	run, err := o.ledger.Open(ctx, source, q.Text)
	if err != nil {
		logging.Logf(models.LogLevelError, source, "open run for %q: %v", q.Text, err)
		result.Status = models.RunStatusFailed
		result.Error = fmt.Sprintf("open run: %v", err)
		return result
	}
	result.RunID = run.ID

	counts, err := o.harvest(ctx, run, source, q)

	// The run row is closed on its own context so it never stays running.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err != nil {
		logging.Logf(models.LogLevelError, source, "run %d %q failed: %v", run.ID, q.Text, err)
		if ferr := o.ledger.Fail(finishCtx, run, err); ferr != nil {
			logging.Logf(models.LogLevelError, source, "record failure of run %d: %v", run.ID, ferr)
		}
		result.Status = models.RunStatusFailed
		result.Error = err.Error()
		return result
	}

	result.JobsFound, result.JobsNew, result.JobsDuplicate = counts.Found, counts.New, counts.Duplicate
	result.Status = models.RunStatusCompleted
	if err := o.ledger.Complete(finishCtx, run, counts); err != nil {
		logging.Logf(models.LogLevelWarn, source, "record completion of run %d: %v", run.ID, err)
		if IsFinalized(err) {
			result.Status = models.RunStatusFailed
			result.Error = models.AbortedByUser
		}
	}

	logging.Logf(models.LogLevelInfo, source, "run %d %q: %d found, %d new, %d duplicate",
		run.ID, q.Text, counts.Found, counts.New, counts.Duplicate)
	return result
}

func (o *Orchestrator) harvest(ctx context.Context, run *models.ScrapeRun, source string, q Query) (models.RunCounts, error) {
	var counts models.RunCounts

	adapter, ok := o.adapters[source]
	if !ok {
		return counts, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	items, err := adapter.Fetch(ctx, q)
	if err != nil {
		return counts, err
	}
	counts.Found = len(items)

	for _, item := range items {
		job := normalize.Normalize(item)
		if job == nil {
			continue
		}

		dup, fp, err := o.dedupe.Check(ctx, job)
		if err != nil {
			logging.Logf(models.LogLevelError, source, "dedupe %q: %v", job.Title, err)
			continue
		}
		if dup {
			counts.Duplicate++
			continue
		}

		inserted, err := o.jobs.InsertJob(ctx, models.NewStoredJob(job, fp, &run.ID))
		if err != nil {
			logging.Logf(models.LogLevelError, source, "insert %q: %v", job.Title, err)
			continue
		}
		if inserted {
			counts.New++
		} else {
			// Lost a race with a concurrent insert of the same posting.
			counts.Duplicate++
		}
	}

	return counts, nil
}

func (o *Orchestrator) triggerMatching(newJobs int) {
	ctx, cancel := context.WithTimeout(context.Background(), matchTimeout)
	defer cancel()

	if err := o.matcher.Trigger(ctx, newJobs); err != nil {
		o.onAsyncError(fmt.Errorf("trigger matching for %d new jobs: %w", newJobs, err))
		return
	}
	logging.Logf(models.LogLevelInfo, "matching", "triggered for %d new jobs", newJobs)
}
