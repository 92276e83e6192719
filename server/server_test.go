package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job_scrooper/config"
	"job_scrooper/models"
	"job_scrooper/scraper"
)

type fakeIngester struct {
	got    models.IngestRequest
	ctxErr error
	resp   *models.IngestResponse
	err    error
}

func (f *fakeIngester) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error) {
	f.got = req
	f.ctxErr = ctx.Err()
	return f.resp, f.err
}

type fakeLedger struct {
	runs      []models.ScrapeRun
	gotLimit  int
	aborted   int64
	recentErr error
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]models.ScrapeRun, error) {
	f.gotLimit = limit
	return f.runs, f.recentErr
}

func (f *fakeLedger) Abort(context.Context) (int64, error) {
	return f.aborted, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, ing Ingester, led RunLedger, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(config.ServerConfig{}, NewHandler(ing, led))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngestReturnsResultsEvenWhenPairsFail(t *testing.T) {
	ing := &fakeIngester{resp: &models.IngestResponse{
		Results:  []models.PairResult{{Query: "go", Source: "indeed", RunID: 1, Status: models.RunStatusFailed, Error: "boom"}},
		Matching: models.MatchingStatus{Status: models.MatchingSkipped, Reason: models.SkipReasonNoNewJobs},
	}}

	w := serve(t, ing, &fakeLedger{}, http.MethodPost, "/api/v1/ingest",
		`{"queries":["go"],"sources":["indeed"],"location":"Austin","max_results":10}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "boom", resp.Results[0].Error)
	assert.Equal(t, "no new jobs", resp.Matching.Reason)
	assert.Equal(t, models.IngestRequest{Queries: []string{"go"}, Sources: []string{"indeed"}, Location: "Austin", MaxResults: 10}, ing.got)
}

func TestIngestIgnoresClientDisconnect(t *testing.T) {
	ing := &fakeIngester{resp: &models.IngestResponse{}}
	router := NewRouter(config.ServerConfig{}, NewHandler(ing, &fakeLedger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(`{"queries":["go"],"sources":["indeed"]}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, ing.ctxErr)
}

func TestIngestRejectsInvalidBodies(t *testing.T) {
	for name, body := range map[string]string{
		"malformed":     `{"queries":`,
		"no queries":    `{"sources":["indeed"]}`,
		"empty sources": `{"queries":["go"],"sources":[]}`,
		"blank query":   `{"queries":[""],"sources":["indeed"]}`,
		"cap too large": `{"queries":["go"],"sources":["indeed"],"max_results":501}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(t, &fakeIngester{}, &fakeLedger{}, http.MethodPost, "/api/v1/ingest", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestIngestMissingTokenIsUnavailable(t *testing.T) {
	ing := &fakeIngester{err: scraper.ErrMissingToken}
	w := serve(t, ing, &fakeLedger{}, http.MethodPost, "/api/v1/ingest", `{"queries":["go"],"sources":["indeed"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "token")
}

func TestListRunsLimit(t *testing.T) {
	led := &fakeLedger{runs: []models.ScrapeRun{{ID: 2, Source: "indeed", Query: "go", Status: models.RunStatusCompleted}}}

	w := serve(t, &fakeIngester{}, led, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultRunsLimit, led.gotLimit)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	serve(t, &fakeIngester{}, led, http.MethodGet, "/api/v1/runs?limit=5000", "")
	assert.Equal(t, maxRunsLimit, led.gotLimit)

	w = serve(t, &fakeIngester{}, led, http.MethodGet, "/api/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRunsStoreError(t *testing.T) {
	led := &fakeLedger{recentErr: errors.New("db gone")}
	w := serve(t, &fakeIngester{}, led, http.MethodGet, "/api/v1/runs?limit=3", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAbortRuns(t *testing.T) {
	w := serve(t, &fakeIngester{}, &fakeLedger{aborted: 3}, http.MethodPost, "/api/v1/runs/abort", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"aborted":3}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	w := serve(t, &fakeIngester{}, &fakeLedger{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	router := NewRouter(config.ServerConfig{CORSOrigins: []string{"https://app.example.com"}}, NewHandler(&fakeIngester{}, &fakeLedger{}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
