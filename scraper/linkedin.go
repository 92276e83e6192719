package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"job_scrooper/config"
	"job_scrooper/logging"
	"job_scrooper/models"
	"job_scrooper/normalize"
)

const (
	linkedinSearchURL = "https://www.linkedin.com/jobs/search"
	linkedinViewURL   = "https://www.linkedin.com/jobs/view/%s/"
	linkedinPageSize  = 25
)

const linkedinSearchPageFunction = `async function pageFunction(context) {
    const { $ } = context;
    const jobs = [];
    $('.base-card, .job-search-card').each((i, el) => {
        const card = $(el);
        const urn = card.attr('data-entity-urn') || card.find('[data-entity-urn]').attr('data-entity-urn') || '';
        const link = card.find('a.base-card__full-link, a.base-search-card--link').attr('href') || '';
        jobs.push({
            title: card.find('.base-search-card__title').text().trim(),
            company: card.find('.base-search-card__subtitle').text().trim(),
            location: card.find('.job-search-card__location').text().trim(),
            jobId: urn.split(':').pop(),
            listingUrl: link.split('?')[0],
        });
    });
    return jobs;
}`

const linkedinDetailPageFunction = `async function pageFunction(context) {
    const { $, request } = context;
    return {
        jobId: request.userData.jobId,
        url: request.loadedUrl || request.url,
        html: $.html(),
    };
}`

// LinkedInAdapter harvests in two phases: a search pass that lists cards,
// then a detail pass over the cards that carry a job id. The detail pass
// is best effort.
type LinkedInAdapter struct {
	cfg    *config.SourceConfig
	runner ActorRunner
}

func NewLinkedInAdapter(cfg *config.SourceConfig, runner ActorRunner) *LinkedInAdapter {
	return &LinkedInAdapter{cfg: cfg, runner: runner}
}

func (a *LinkedInAdapter) Source() string {
	return a.cfg.ID
}

// linkedinCard is one search result, later enriched by the detail pass.
type linkedinCard struct {
	Title          string `json:"title"`
	Company        string `json:"company"`
	Location       string `json:"location"`
	JobID          string `json:"jobId"`
	ListingURL     string `json:"listingUrl"`
	ApplyURL       string `json:"applyUrl"`
	Description    string `json:"description"`
	EmploymentType string `json:"employmentType,omitempty"`
}

// SearchURL builds the listing URL for one results page.
func SearchURL(q Query, start int) string {
	params := url.Values{}
	params.Set("keywords", q.Text)
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}
	return linkedinSearchURL + "?" + params.Encode()
}

func (a *LinkedInAdapter) BuildSearchInput(q Query) map[string]any {
	pages := (q.MaxResults + linkedinPageSize - 1) / linkedinPageSize
	if pages < 1 {
		pages = 1
	}
	startURLs := make([]map[string]any, 0, pages)
	for p := 0; p < pages; p++ {
		startURLs = append(startURLs, map[string]any{"url": SearchURL(q, p*linkedinPageSize)})
	}

	return map[string]any{
		"startUrls":           startURLs,
		"pageFunction":        linkedinSearchPageFunction,
		"proxyConfiguration":  proxyInput(a.cfg.Proxy),
		"maxRequestsPerCrawl": pages,
		"maxConcurrency":      1,
	}
}

func (a *LinkedInAdapter) BuildDetailInput(ids []string) map[string]any {
	startURLs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		startURLs = append(startURLs, map[string]any{
			"url":      fmt.Sprintf(linkedinViewURL, id),
			"userData": map[string]string{"jobId": id},
		})
	}

	return map[string]any{
		"startUrls":           startURLs,
		"pageFunction":        linkedinDetailPageFunction,
		"proxyConfiguration":  proxyInput(a.cfg.Proxy),
		"maxRequestsPerCrawl": len(ids),
	}
}

func (a *LinkedInAdapter) Fetch(ctx context.Context, q Query) ([]models.RawItem, error) {
	raw, err := a.runner.Call(ctx, a.cfg.Actor, a.BuildSearchInput(q))
	if err != nil {
		return nil, fmt.Errorf("linkedin search %q: %w", q.Text, err)
	}

	cards := decodeCards(flatten(raw))
	if q.MaxResults > 0 && len(cards) > q.MaxResults {
		cards = cards[:q.MaxResults]
	}

	var ids []string
	for _, c := range cards {
		if c.JobID != "" {
			ids = append(ids, c.JobID)
		}
	}

	details := map[string]JobDetail{}
	if len(ids) > 0 && a.cfg.DetailActor != "" {
		details, err = a.fetchDetails(ctx, ids)
		if err != nil {
			logging.Logf(models.LogLevelWarn, a.cfg.ID, "detail phase failed, keeping %d search results: %v", len(cards), err)
			details = map[string]JobDetail{}
		}
	}

	return mergeCards(cards, details), nil
}

func (a *LinkedInAdapter) fetchDetails(ctx context.Context, ids []string) (map[string]JobDetail, error) {
	raw, err := a.runner.Call(ctx, a.cfg.DetailActor, a.BuildDetailInput(ids))
	if err != nil {
		return nil, err
	}

	details := make(map[string]JobDetail, len(raw))
	for _, item := range flatten(raw) {
		var page struct {
			JobID string `json:"jobId"`
			URL   string `json:"url"`
			HTML  string `json:"html"`
		}
		if err := json.Unmarshal(item, &page); err != nil {
			continue
		}
		id := page.JobID
		if id == "" {
			id = normalize.LinkedInJobID(page.URL)
		}
		if id == "" {
			continue
		}
		details[id] = ResolveDetail(page.HTML)
	}
	return details, nil
}

// mergeCards joins detail results onto cards by job id. Cards without a
// detail keep their listing URL as the apply URL and an empty description.
func mergeCards(cards []linkedinCard, details map[string]JobDetail) []models.RawItem {
	items := make([]models.RawItem, 0, len(cards))
	for _, c := range cards {
		c.ApplyURL = c.ListingURL
		c.Description = ""
		if d, ok := details[c.JobID]; ok && c.JobID != "" {
			if d.ApplyURL != "" {
				c.ApplyURL = d.ApplyURL
			}
			c.Description = d.Description
			c.EmploymentType = d.EmploymentType
		}

		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		items = append(items, models.RawItem{Source: models.SourceLinkedIn, Data: data})
	}
	return items
}

// flatten expands items that are themselves JSON arrays, at any depth.
func flatten(items []json.RawMessage) []json.RawMessage {
	var out []json.RawMessage
	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var nested []json.RawMessage
			if err := json.Unmarshal(trimmed, &nested); err == nil {
				out = append(out, flatten(nested)...)
			}
			continue
		}
		out = append(out, item)
	}
	return out
}

// searchCard is the tolerant decoding of one search result; a numeric job
// id or an oddly typed field must not drop the card.
type searchCard struct {
	Title      normalize.FlexString `json:"title"`
	Company    normalize.FlexString `json:"company"`
	Location   normalize.FlexString `json:"location"`
	JobID      normalize.FlexString `json:"jobId"`
	ListingURL normalize.FlexString `json:"listingUrl"`
}

func decodeCards(items []json.RawMessage) []linkedinCard {
	cards := make([]linkedinCard, 0, len(items))
	for _, item := range items {
		var sc searchCard
		if err := json.Unmarshal(item, &sc); err != nil {
			continue
		}
		c := linkedinCard{
			Title:      normalize.CleanText(sc.Title.String()),
			Company:    normalize.CleanText(sc.Company.String()),
			Location:   normalize.CleanText(sc.Location.String()),
			JobID:      normalize.CleanText(sc.JobID.String()),
			ListingURL: normalize.CleanText(sc.ListingURL.String()),
		}
		if c.JobID == "" {
			c.JobID = normalize.LinkedInJobID(c.ListingURL)
		}
		cards = append(cards, c)
	}
	return cards
}
