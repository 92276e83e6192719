package scraper

import (
	"context"
	"fmt"

	"job_scrooper/config"
	"job_scrooper/models"
)

// IndeedAdapter runs a single actor call per query.
type IndeedAdapter struct {
	cfg    *config.SourceConfig
	runner ActorRunner
}

func NewIndeedAdapter(cfg *config.SourceConfig, runner ActorRunner) *IndeedAdapter {
	return &IndeedAdapter{cfg: cfg, runner: runner}
}

func (a *IndeedAdapter) Source() string {
	return a.cfg.ID
}

func (a *IndeedAdapter) BuildInput(q Query) map[string]any {
	input := map[string]any{
		"parseCompanyDetails":  false,
		"saveOnlyUniqueItems":  true,
		"followApplyRedirects": false,
	}
	for k, v := range a.cfg.Extra {
		input[k] = v
	}

	country := a.cfg.Country
	if country == "" {
		country = "US"
	}
	input["position"] = q.Text
	input["country"] = country
	input["maxItems"] = q.MaxResults
	if q.Location != "" {
		input["location"] = q.Location
	}
	if a.cfg.Proxy.UseApifyProxy {
		input["proxyConfiguration"] = proxyInput(a.cfg.Proxy)
	}
	return input
}

func (a *IndeedAdapter) Fetch(ctx context.Context, q Query) ([]models.RawItem, error) {
	items, err := a.runner.Call(ctx, a.cfg.Actor, a.BuildInput(q))
	if err != nil {
		return nil, fmt.Errorf("indeed search %q: %w", q.Text, err)
	}
	return tagItems(models.SourceIndeed, items), nil
}
