package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"job_scrooper/apify"
	"job_scrooper/models"
	"job_scrooper/storage"
)

// fakeRunner answers Call by actor id.
type fakeRunner struct {
	mu       sync.Mutex
	handlers map[string]func(input map[string]any) ([]json.RawMessage, error)
	calls    []string
	inputs   []map[string]any
	ctxErrs  []error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: map[string]func(map[string]any) ([]json.RawMessage, error){}}
}

func (r *fakeRunner) on(actor string, fn func(input map[string]any) ([]json.RawMessage, error)) *fakeRunner {
	r.handlers[actor] = fn
	return r
}

func (r *fakeRunner) returns(actor string, items ...string) *fakeRunner {
	return r.on(actor, func(map[string]any) ([]json.RawMessage, error) {
		return rawItems(items...), nil
	})
}

func (r *fakeRunner) fails(actor string, err error) *fakeRunner {
	return r.on(actor, func(map[string]any) ([]json.RawMessage, error) {
		return nil, err
	})
}

func (r *fakeRunner) Call(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	r.mu.Lock()
	r.calls = append(r.calls, actorID)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	in, _ := input.(map[string]any)
	r.inputs = append(r.inputs, in)
	fn, ok := r.handlers[actorID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no fake for actor %s", actorID)
	}
	return fn(in)
}

func (r *fakeRunner) callCount(actor string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == actor {
			n++
		}
	}
	return n
}

func rawItems(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		out = append(out, json.RawMessage(it))
	}
	return out
}

// memStore is an in-memory RunStore and JobStore.
type memStore struct {
	mu        sync.Mutex
	runs      []*models.ScrapeRun
	jobs      []*models.StoredJob
	insertErr error
	createErr error
}

func (s *memStore) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	run.ID = int64(len(s.runs) + 1)
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *memStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID != run.ID {
			continue
		}
		if r.Status != models.RunStatusRunning {
			return storage.ErrRunFinalized
		}
		*r = *run
		return nil
	}
	return errors.New("run not found")
}

func (s *memStore) ListRecentRuns(_ context.Context, limit int) ([]models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScrapeRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) FailRunningRuns(_ context.Context, message string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.runs {
		if r.Status == models.RunStatusRunning {
			msg := message
			r.Status = models.RunStatusFailed
			r.ErrorMessage = &msg
			r.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetJobByFingerprint(_ context.Context, fp string) (*models.StoredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Fingerprint == fp {
			return j, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetJobBySourceID(_ context.Context, source, id string) (*models.StoredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if id != "" && j.Source == source && j.SourceJobID == id {
			return j, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertJob(_ context.Context, job *models.StoredJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	s.jobs = append(s.jobs, job)
	return true, nil
}

func (s *memStore) run(id int64) models.ScrapeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return *r
		}
	}
	return models.ScrapeRun{}
}

func (s *memStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// fakeAborter records remote abort requests.
type fakeAborter struct {
	mu      sync.Mutex
	running map[string][]apify.Run
	listErr map[string]error
	aborted []string
}

func (a *fakeAborter) RunningRuns(_ context.Context, actor string) ([]apify.Run, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.listErr[actor]; err != nil {
		return nil, err
	}
	return a.running[actor], nil
}

func (a *fakeAborter) Abort(_ context.Context, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = append(a.aborted, runID)
	return nil
}

func (a *fakeAborter) abortedRuns() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.aborted...)
}
