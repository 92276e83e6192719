package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"job_scrooper/apify"
	"job_scrooper/config"
	"job_scrooper/httputil"
	"job_scrooper/logging"
	"job_scrooper/models"
	"job_scrooper/scheduler"
	"job_scrooper/scraper"
	"job_scrooper/server"
	"job_scrooper/services"
	"job_scrooper/storage"
	"job_scrooper/workers"
)

var (
	ingestNow    = flag.Bool("ingest", false, "Run one ingestion batch and exit")
	queries      = flag.String("q", "", "Comma-separated search queries for -ingest")
	sources      = flag.String("s", "", "Comma-separated source ids for -ingest (default: all configured)")
	location     = flag.String("l", "", "Location filter for -ingest")
	maxResults   = flag.Int("n", 0, "Per-pair result cap for -ingest (default 50)")
	skipMatching = flag.Bool("skip-matching", false, "Do not trigger matching after -ingest")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, 0)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting job_scrooper...")
	if cfg.Apify.Token == "" {
		log.Fatal("APIFY_TOKEN is not set")
	}

	ids := make([]string, 0, len(cfg.Sources))
	for id := range cfg.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	log.Printf("Loaded %d source configs", len(ids))
	for _, id := range ids {
		src := cfg.Sources[id]
		log.Printf("  - %s (%s, actor %s)", src.Name, id, src.Actor)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.DB.Driver, err)
	}
	defer store.Close()
	if cfg.DB.URL != "" {
		log.Printf("Database: %s (%s)", cfg.DB.Driver, maskConnectionString(cfg.DB.URL))
	} else {
		log.Printf("Database: %s (%s)", cfg.DB.Driver, cfg.DB.Path)
	}

	clients := httputil.NewClients(cfg.ProxyURL)
	client := apify.NewClient(cfg.Apify, clients.API)
	ledger := scraper.NewLedger(store, client, cfg.Actors())

	matcher, closeMatcher := newMatcher(ctx, cfg.Redis)
	defer closeMatcher()

	orchestrator, err := scraper.NewOrchestrator(cfg, client, ledger, store, matcher)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	if *ingestNow {
		runOnce(ctx, orchestrator)
		return
	}

	liveness := workers.NewLivenessWorker(store, clients)
	go liveness.Run(ctx, cfg.Liveness.StaleAfter, cfg.Liveness.BatchSize, cfg.Liveness.Interval)
	log.Println("Liveness worker started")

	sched := scheduler.New(cfg.Scheduler, orchestrator)
	sched.SetWorkers(liveness)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	router := server.NewRouter(cfg.Server, server.NewHandler(orchestrator, ledger))
	if err := server.Run(ctx, ":"+cfg.Server.Port, router); err != nil {
		log.Printf("HTTP server error: %v", err)
	}

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

func runOnce(ctx context.Context, orchestrator *scraper.Orchestrator) {
	req := models.IngestRequest{
		Queries:      splitList(*queries),
		Sources:      splitList(*sources),
		Location:     *location,
		MaxResults:   *maxResults,
		SkipMatching: *skipMatching,
	}
	if len(req.Sources) == 0 {
		req.Sources = orchestrator.Sources()
	}

	log.Printf("Running ingestion: %d queries x %d sources", len(req.Queries), len(req.Sources))
	resp, err := orchestrator.Ingest(context.WithoutCancel(ctx), req)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

// newMatcher publishes to Redis when configured and falls back to logging.
func newMatcher(ctx context.Context, cfg config.RedisConfig) (services.MatchTrigger, func()) {
	if cfg.URL == "" {
		log.Println("REDIS_URL not set, matching requests will only be logged")
		return services.LogMatchTrigger{}, func() {}
	}

	rdb, err := services.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		log.Printf("Warning: %v, matching requests will only be logged", err)
		return services.LogMatchTrigger{}, func() {}
	}
	log.Printf("Matching requests publish to Redis channel %s", services.MatchJobsChannel)
	return services.NewRedisMatchTrigger(rdb), func() { rdb.Close() }
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maskConnectionString hides the password in a connection URL for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
