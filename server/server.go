package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"job_scrooper/config"
	"job_scrooper/logging"
	"job_scrooper/models"
	"job_scrooper/scraper"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Ingester is the part of the orchestrator the HTTP surface drives.
type Ingester interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error)
}

// RunLedger lists and aborts scrape runs.
type RunLedger interface {
	Recent(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	Abort(ctx context.Context) (int64, error)
}

type Handler struct {
	ingester Ingester
	ledger   RunLedger
}

func NewHandler(ingester Ingester, ledger RunLedger) *Handler {
	return &Handler{ingester: ingester, ledger: ledger}
}

// NewRouter builds the gin engine with CORS and every route registered.
func NewRouter(cfg config.ServerConfig, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/ingest", h.Ingest)
		api.GET("/runs", h.ListRuns)
		api.POST("/runs/abort", h.AbortRuns)
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ingest is POST /api/v1/ingest. Per-pair failures are reported in the body
// with a 200; only request and configuration problems change the status.
func (h *Handler) Ingest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	// A client that gives up must not cut a batch short.
	resp, err := h.ingester.Ingest(context.WithoutCancel(c.Request.Context()), req)
	switch {
	case errors.Is(err, scraper.ErrMissingToken):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, scraper.ErrEmptyRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs: " + err.Error()})
		return
	}
	if runs == nil {
		runs = []models.ScrapeRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) AbortRuns(c *gin.Context) {
	n, err := h.ledger.Abort(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "abort runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"aborted": n})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logf(models.LogLevelInfo, "http", "%s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logf(models.LogLevelInfo, "http", "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
