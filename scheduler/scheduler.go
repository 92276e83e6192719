package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"job_scrooper/config"
	"job_scrooper/logging"
	"job_scrooper/models"
)

// Ingester runs one ingestion batch.
type Ingester interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error)
}

// Triggerable allows workers to be run on the same schedule.
type Triggerable interface {
	Trigger()
}

// Scheduler fires the configured ingestion batch on a cron spec. Batches
// never overlap; a tick that arrives while one is running is skipped.
type Scheduler struct {
	cfg      config.SchedulerConfig
	ingester Ingester
	cron     *cron.Cron
	workers  []Triggerable

	mu      sync.Mutex
	running bool
}

func New(cfg config.SchedulerConfig, ingester Ingester) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		ingester: ingester,
		cron:     cron.New(),
	}
}

// SetWorkers registers workers triggered after each scheduled batch.
func (s *Scheduler) SetWorkers(workers ...Triggerable) {
	s.workers = workers
}

// Request is the batch each tick submits.
func (s *Scheduler) Request() models.IngestRequest {
	return models.IngestRequest{
		Queries:    s.cfg.Queries,
		Sources:    s.cfg.Sources,
		Location:   s.cfg.Location,
		MaxResults: s.cfg.MaxResults,
	}
}

// Start registers the cron job. It is a no-op when no cron expression is configured.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron == "" {
		logging.Logf(models.LogLevelInfo, "scheduler", "no schedule configured, ingestion runs only on request")
		return nil
	}
	if len(s.cfg.Queries) == 0 || len(s.cfg.Sources) == 0 {
		return fmt.Errorf("scheduler: SCRAPE_CRON is set but SCRAPE_QUERIES or SCRAPE_SOURCES is empty")
	}

	if _, err := s.cron.AddFunc(s.cfg.Cron, func() {
		if _, err := s.TriggerNow(ctx); err != nil {
			logging.Logf(models.LogLevelError, "scheduler", "scheduled run: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	logging.Logf(models.LogLevelInfo, "scheduler", "starting with cron %q: %d queries x %d sources",
		s.cfg.Cron, len(s.cfg.Queries), len(s.cfg.Sources))
	s.cron.Start()
	return nil
}

// Stop waits for a running batch to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// TriggerNow runs the configured batch immediately. It returns nil, nil if
// a batch is already in progress.
func (s *Scheduler) TriggerNow(ctx context.Context) (*models.IngestResponse, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logging.Logf(models.LogLevelWarn, "scheduler", "previous batch still running, skipping")
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	resp, err := s.ingester.Ingest(ctx, s.Request())
	if err != nil {
		return nil, err
	}
	if resp.TotalNew > 0 {
		for _, w := range s.workers {
			w.Trigger()
		}
	}
	return resp, nil
}
