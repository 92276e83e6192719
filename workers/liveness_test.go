package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"job_scrooper/httputil"
	"job_scrooper/models"
)

type checkedJob struct {
	active bool
	at     time.Time
}

type fakeChecker struct {
	mu      sync.Mutex
	jobs    []models.StoredJob
	before  time.Time
	limit   int
	checked map[uuid.UUID]checkedJob
}

func (f *fakeChecker) ListJobsForCheck(_ context.Context, checkedBefore time.Time, limit int) ([]models.StoredJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before, f.limit = checkedBefore, limit
	return f.jobs, nil
}

func (f *fakeChecker) MarkJobChecked(_ context.Context, id uuid.UUID, active bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checked == nil {
		f.checked = map[uuid.UUID]checkedJob{}
	}
	f.checked[id] = checkedJob{active: active, at: at}
	return nil
}

func (f *fakeChecker) result(id uuid.UUID) (checkedJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checked[id]
	return c, ok
}

func jobAt(u string) models.StoredJob {
	return models.StoredJob{
		ID:            uuid.New(),
		NormalizedJob: models.NormalizedJob{Title: "Go Engineer", Company: "Acme", ApplyURL: u},
		IsActive:      true,
	}
}

func newTestWorker(store JobChecker) *LivenessWorker {
	w := NewLivenessWorker(store, httputil.NewClients(""))
	w.limiter = rate.NewLimiter(rate.Inf, 1)
	w.SetLogger(func(models.LogLevel, string, string) {})
	return w
}

func TestProcessBatchDeactivatesGonePostings(t *testing.T) {
	var mu sync.Mutex
	methods := map[string][]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods[r.URL.Path] = append(methods[r.URL.Path], r.Method)
		mu.Unlock()
		switch r.URL.Path {
		case "/live":
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/moved":
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		case "/no-head":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	live, missing, gone := jobAt(srv.URL+"/live"), jobAt(srv.URL+"/missing"), jobAt(srv.URL+"/gone")
	moved, noHead, broken := jobAt(srv.URL+"/moved"), jobAt(srv.URL+"/no-head"), jobAt(srv.URL+"/broken")
	store := &fakeChecker{jobs: []models.StoredJob{live, missing, gone, moved, noHead, broken}}

	w := newTestWorker(store)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	assert.Equal(t, 3, w.ProcessBatch(context.Background(), 24*time.Hour, 20))
	assert.Equal(t, now.Add(-24*time.Hour), store.before)
	assert.Equal(t, 20, store.limit)

	for job, wantActive := range map[uuid.UUID]bool{
		live.ID: true, missing.ID: false, gone.ID: false,
		moved.ID: true, noHead.ID: false, broken.ID: true,
	} {
		got, ok := store.result(job)
		require.True(t, ok)
		assert.Equal(t, wantActive, got.active)
		assert.Equal(t, now, got.at)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods["/no-head"])
	assert.Equal(t, []string{http.MethodHead}, methods["/moved"])
}

func TestCheckKeepsJobActiveOnNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/closed"
	srv.Close()

	result := newTestWorker(&fakeChecker{}).Check(context.Background(), target)
	assert.Error(t, result.Error)
	assert.True(t, result.IsLive)
}

func TestRunProcessesOnTrigger(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	job := jobAt(srv.URL + "/job")
	store := &fakeChecker{jobs: []models.StoredJob{job}}
	w := newTestWorker(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Hour, 5, time.Hour)
		close(done)
	}()

	w.Trigger()
	w.Trigger()
	assert.Eventually(t, func() bool {
		_, ok := store.result(job.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	got, _ := store.result(job.ID)
	assert.False(t, got.active)
}

func TestRunFallsBackOnNonPositiveSettings(t *testing.T) {
	store := &fakeChecker{}
	w := newTestWorker(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 0, 0, 0)
		close(done)
	}()

	w.Trigger()
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.limit == 20
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
