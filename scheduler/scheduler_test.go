package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job_scrooper/config"
	"job_scrooper/models"
)

type fakeIngester struct {
	calls   atomic.Int32
	got     models.IngestRequest
	block   chan struct{}
	newJobs int
	err     error
}

func (f *fakeIngester) Ingest(_ context.Context, req models.IngestRequest) (*models.IngestResponse, error) {
	f.calls.Add(1)
	f.got = req
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.IngestResponse{TotalNew: f.newJobs}, nil
}

type countingWorker struct{ n atomic.Int32 }

func (w *countingWorker) Trigger() { w.n.Add(1) }

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Cron:       "@every 1h",
		Queries:    []string{"golang", "sre"},
		Sources:    []string{"indeed", "linkedin"},
		Location:   "Remote",
		MaxResults: 25,
	}
}

func TestTriggerNowSubmitsConfiguredBatch(t *testing.T) {
	ing := &fakeIngester{newJobs: 2}
	worker := &countingWorker{}
	s := New(testConfig(), ing)
	s.SetWorkers(worker)

	resp, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalNew)
	assert.Equal(t, models.IngestRequest{
		Queries: []string{"golang", "sre"}, Sources: []string{"indeed", "linkedin"},
		Location: "Remote", MaxResults: 25,
	}, ing.got)
	assert.EqualValues(t, 1, worker.n.Load())
}

func TestTriggerNowSkipsWorkersWithoutNewJobs(t *testing.T) {
	worker := &countingWorker{}
	s := New(testConfig(), &fakeIngester{})
	s.SetWorkers(worker)

	_, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, worker.n.Load())
}

func TestTriggerNowDoesNotOverlap(t *testing.T) {
	ing := &fakeIngester{block: make(chan struct{})}
	s := New(testConfig(), ing)

	done := make(chan struct{})
	go func() {
		_, _ = s.TriggerNow(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return ing.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := s.TriggerNow(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, resp)

	close(ing.block)
	<-done
	assert.EqualValues(t, 1, ing.calls.Load())
}

func TestTriggerNowPropagatesErrors(t *testing.T) {
	s := New(testConfig(), &fakeIngester{err: errors.New("missing token")})
	_, err := s.TriggerNow(context.Background())
	assert.EqualError(t, err, "missing token")
}

func TestStartValidatesConfig(t *testing.T) {
	assert.NoError(t, New(config.SchedulerConfig{}, &fakeIngester{}).Start(context.Background()))

	noQueries := testConfig()
	noQueries.Queries = nil
	assert.Error(t, New(noQueries, &fakeIngester{}).Start(context.Background()))

	badSpec := testConfig()
	badSpec.Cron = "every tuesday"
	assert.ErrorContains(t, New(badSpec, &fakeIngester{}).Start(context.Background()), "invalid cron expression")

	s := New(testConfig(), &fakeIngester{})
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
