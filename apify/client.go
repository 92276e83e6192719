package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"job_scrooper/config"
)

const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborting  = "ABORTING"
	StatusAborted   = "ABORTED"
	StatusTimingOut = "TIMING-OUT"
	StatusTimedOut  = "TIMED-OUT"
)

// maxErrorBody caps how much of an error response is kept on typed errors.
const maxErrorBody = 2048

// Run is a handle on a remote actor execution.
type Run struct {
	ID        string `json:"id"`
	ActorID   string `json:"actId"`
	Status    string `json:"status"`
	DatasetID string `json:"defaultDatasetId"`
}

// Client starts actors, waits for them and reads their datasets. It holds
// no per-run state and never retries.
type Client struct {
	cfg     config.ApifyConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg config.ApifyConfig, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultApifyBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = config.DefaultPollTimeout
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = config.DefaultMaxItems
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) HasToken() bool {
	return c.cfg.Token != ""
}

// Call starts an actor with input, waits for it and returns its dataset.
func (c *Client) Call(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	run, err := c.Start(ctx, actorID, input)
	if err != nil {
		return nil, err
	}
	log.Printf("Apify run started: %s (actor: %s)", run.ID, actorID)

	run, err = c.Wait(ctx, run)
	if err != nil {
		return nil, err
	}

	items, err := c.FetchItems(ctx, run.DatasetID)
	if err != nil {
		return nil, err
	}
	log.Printf("Apify run %s complete: %d items", run.ID, len(items))
	return items, nil
}

func (c *Client) Start(ctx context.Context, actorID string, input any) (*Run, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode actor input: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/acts/"+actorPath(actorID)+"/runs", nil, body)
	if err != nil {
		return nil, fmt.Errorf("start actor %s: %w", actorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ActorStartError{Actor: actorID, StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var result struct {
		Data Run `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode start response: %w", err)
	}
	if result.Data.ID == "" {
		return nil, &ActorStartError{Actor: actorID, StatusCode: resp.StatusCode, Body: "missing run id"}
	}
	return &result.Data, nil
}

// Wait polls the run until it succeeds, fails or the poll budget runs out.
// Transport errors while polling are logged and polling continues.
func (c *Client) Wait(ctx context.Context, run *Run) (*Run, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			return nil, &ActorTimeoutError{RunID: run.ID, Budget: c.cfg.PollTimeout}
		}

		current, err := c.getRun(ctx, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Apify poll %s: %v", run.ID, err)
		} else {
			switch current.Status {
			case StatusSucceeded:
				return current, nil
			case StatusFailed, StatusAborted, StatusAborting, StatusTimedOut, StatusTimingOut:
				return nil, &ActorRunFailedError{RunID: run.ID, Status: current.Status}
			}
		}

		timer.Reset(c.cfg.PollInterval)
	}
}

func (c *Client) getRun(ctx context.Context, runID string) (*Run, error) {
	resp, err := c.do(ctx, http.MethodGet, "/actor-runs/"+runID, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var result struct {
		Data Run `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &result.Data, nil
}

// FetchItems reads at most MaxItems records from a dataset. An empty
// dataset is not an error.
func (c *Client) FetchItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("clean", "true")
	q.Set("limit", strconv.Itoa(c.cfg.MaxItems))

	resp, err := c.do(ctx, http.MethodGet, "/datasets/"+datasetID+"/items", q, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", datasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset fetch failed %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", datasetID, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// RunningRuns lists runs of an actor the host still reports as RUNNING.
func (c *Client) RunningRuns(ctx context.Context, actorID string) ([]Run, error) {
	q := url.Values{}
	q.Set("status", StatusRunning)

	resp, err := c.do(ctx, http.MethodGet, "/acts/"+actorPath(actorID)+"/runs", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list runs %s failed %d: %s", actorID, resp.StatusCode, readBody(resp.Body))
	}

	var result struct {
		Data struct {
			Items []Run `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return result.Data.Items, nil
}

func (c *Client) Abort(ctx context.Context, runID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/actor-runs/"+runID+"/abort", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("abort run %s failed %d: %s", runID, resp.StatusCode, readBody(resp.Body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.cfg.Token)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redactToken(err, c.cfg.Token)
	}
	return resp, nil
}

// actorPath converts "user/actor" into the "user~actor" form the API expects.
func actorPath(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

// redactToken strips the token from transport errors, which embed the URL.
func redactToken(err error, token string) error {
	var uerr *url.Error
	if token != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, token, "***")
	}
	return err
}
