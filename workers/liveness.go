package workers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"job_scrooper/config"
	"job_scrooper/httputil"
	"job_scrooper/models"
)

// JobChecker is the storage the liveness worker reads stale jobs from and
// records outcomes to.
type JobChecker interface {
	ListJobsForCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredJob, error)
	MarkJobChecked(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
}

// CheckResult is the outcome of probing one apply URL.
type CheckResult struct {
	IsLive     bool
	StatusCode int
	Error      error
}

// LivenessWorker re-checks the apply URLs of stored jobs and deactivates
// the ones whose posting is gone.
type LivenessWorker struct {
	store      JobChecker
	httpClient *http.Client
	limiter    *rate.Limiter
	triggerCh  chan struct{}
	logFunc    LogFunc
	now        func() time.Time
}

func NewLivenessWorker(store JobChecker, clients *httputil.Clients) *LivenessWorker {
	return &LivenessWorker{
		store:      store,
		httpClient: clients.Probe,
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		triggerCh:  make(chan struct{}, 1),
		logFunc:    StdLogger,
		now:        time.Now,
	}
}

func (w *LivenessWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger runs a batch as soon as the loop is free. Extra triggers while one
// is pending are dropped.
func (w *LivenessWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Check probes a URL with HEAD, falling back to GET when HEAD is refused.
// Only 404 and 410 count as gone; redirects, server errors and other
// statuses leave the job active.
func (w *LivenessWorker) Check(ctx context.Context, applyURL string) CheckResult {
	result := w.probe(ctx, http.MethodHead, applyURL)
	if result.Error == nil && (result.StatusCode == http.StatusMethodNotAllowed || result.StatusCode == http.StatusNotImplemented) {
		result = w.probe(ctx, http.MethodGet, applyURL)
	}
	return result
}

func (w *LivenessWorker) probe(ctx context.Context, method, target string) CheckResult {
	if err := w.limiter.Wait(ctx); err != nil {
		return CheckResult{IsLive: true, Error: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return CheckResult{IsLive: true, Error: err}
	}
	req.Header.Set("User-Agent", httputil.BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return CheckResult{IsLive: true, Error: err}
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return CheckResult{IsLive: false, StatusCode: resp.StatusCode}
	default:
		return CheckResult{IsLive: true, StatusCode: resp.StatusCode}
	}
}

// Run checks a batch every interval, or on Trigger, until ctx is done.
// Non-positive settings fall back to the defaults.
func (w *LivenessWorker) Run(ctx context.Context, staleAfter time.Duration, batchSize int, interval time.Duration) {
	if interval <= 0 {
		interval = config.DefaultLivenessInterval
	}
	if batchSize <= 0 {
		batchSize = config.DefaultLivenessBatch
	}
	if staleAfter <= 0 {
		staleAfter = config.DefaultLivenessStaleAfter
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logFunc(models.LogLevelInfo, "liveness", "worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, staleAfter, batchSize)
		case <-w.triggerCh:
			w.logFunc(models.LogLevelInfo, "liveness", "worker triggered manually")
			w.ProcessBatch(ctx, staleAfter, batchSize)
		}
	}
}

// ProcessBatch checks up to batchSize active jobs not checked within
// staleAfter and returns how many were deactivated.
func (w *LivenessWorker) ProcessBatch(ctx context.Context, staleAfter time.Duration, batchSize int) int {
	jobs, err := w.store.ListJobsForCheck(ctx, w.now().Add(-staleAfter).UTC(), batchSize)
	if err != nil {
		w.logFunc(models.LogLevelError, "liveness", fmt.Sprintf("list jobs for check: %v", err))
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	gone := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		result := w.Check(ctx, job.ApplyURL)
		if result.Error != nil {
			w.logFunc(models.LogLevelWarn, "liveness",
				fmt.Sprintf("%s %q: probe failed, keeping active: %v", job.ID.String()[:8], job.Title, result.Error))
		}
		if !result.IsLive {
			gone++
			w.logFunc(models.LogLevelInfo, "liveness",
				fmt.Sprintf("%s %q at %s is gone (%d)", job.ID.String()[:8], job.Title, job.Company, result.StatusCode))
		}

		if err := w.store.MarkJobChecked(ctx, job.ID, result.IsLive, w.now().UTC()); err != nil {
			w.logFunc(models.LogLevelError, "liveness", fmt.Sprintf("mark %s checked: %v", job.ID, err))
		}
	}

	w.logFunc(models.LogLevelInfo, "liveness", fmt.Sprintf("checked %d jobs, %d gone", len(jobs), gone))
	return gone
}
