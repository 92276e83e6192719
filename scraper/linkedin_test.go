package scraper

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job_scrooper/config"
	"job_scrooper/models"
)

func linkedinSource() *config.SourceConfig {
	return &config.SourceConfig{
		ID: "linkedin", Adapter: "linkedin", Actor: searchActor, DetailActor: detailActor,
		Proxy: config.ProxySettings{UseApifyProxy: true, Groups: []string{"RESIDENTIAL"}},
	}
}

func TestResolveDetailPrefersLinkedData(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"JobPosting",
 "url":"https://www.linkedin.com/jobs/view/1","sameAs":"https://jobs.acme.com/posting/1",
 "description":"&lt;p&gt;Build &lt;b&gt;things&lt;/b&gt;&lt;/p&gt;","employmentType":"FULL_TIME"}</script>
</head><body><a class="apply-button" href="https://other.example.com/apply">Apply</a></body></html>`

	d := ResolveDetail(page)
	assert.Equal(t, "https://jobs.acme.com/posting/1", d.ApplyURL)
	assert.Equal(t, "Build things", d.Description)
	assert.Equal(t, "FULL_TIME", d.EmploymentType)
}

func TestResolveDetailReadsGraphBlocks(t *testing.T) {
	page := `<script type="application/ld+json">{"@graph":[{"@type":"Organization"},
 {"@type":["JobPosting"],"potentialAction":{"target":{"urlTemplate":"https://apply.initech.com/42"}}}]}</script>`

	assert.Equal(t, "https://apply.initech.com/42", ResolveDetail(page).ApplyURL)
}

func TestResolveDetailFallsBackToApplyAnchor(t *testing.T) {
	page := `<body>
<div class="show-more-less-html__markup"><p>Hello</p><ul><li>Go</li></ul></div>
<ul><li class="description__job-criteria-item">
  <h3 class="description__job-criteria-subheader">Employment type</h3>
  <span class="description__job-criteria-text"> Contract </span>
</li></ul>
<a class="apply-button" href="https://www.linkedin.com/jobs/view/externalApply/42?url=https%3A%2F%2Fboards.greenhouse.io%2Facme%2Fjobs%2F42&amp;urlHash=abc">Apply</a>
</body>`

	d := ResolveDetail(page)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/42", d.ApplyURL)
	assert.Equal(t, "Hello Go", d.Description)
	assert.Equal(t, "Contract", d.EmploymentType)
}

func TestResolveDetailFallsBackToMarkupPatterns(t *testing.T) {
	redirect := `<code>{"link":"https://www.linkedin.com/jobs/view/externalApply/7?url=https%3A%2F%2Fjobs.acme.com%2F7&urlHash=x"}</code>`
	assert.Equal(t, "https://jobs.acme.com/7", ResolveDetail(redirect).ApplyURL)

	field := `<code>{"companyApplyUrl":"https:\/\/careers.acme.com\/apply\/9"}</code>`
	assert.Equal(t, "https://careers.acme.com/apply/9", ResolveDetail(field).ApplyURL)
}

func TestResolveDetailIgnoresSelfReferences(t *testing.T) {
	page := `<script type="application/ld+json">{"@type":"JobPosting","url":"https://www.linkedin.com/jobs/view/5"}</script>
<a class="apply-button" href="https://www.linkedin.com/jobs/view/5/apply">Apply</a>
<a data-apply-url="https://lnkd.in/abc" class="apply-button">Apply</a>
<code>{"applyUrl":"/relative/path"}</code>`

	assert.Empty(t, ResolveDetail(page).ApplyURL)
	assert.Equal(t, JobDetail{}, ResolveDetail("   "))
}

func TestBuildSearchInputPaginates(t *testing.T) {
	a := NewLinkedInAdapter(linkedinSource(), newFakeRunner())
	input := a.BuildSearchInput(Query{Text: "go dev", Location: "Austin", MaxResults: 60})

	urls := input["startUrls"].([]map[string]any)
	require.Len(t, urls, 3)
	assert.Equal(t, "https://www.linkedin.com/jobs/search?keywords=go+dev&location=Austin", urls[0]["url"])
	assert.Equal(t, "https://www.linkedin.com/jobs/search?keywords=go+dev&location=Austin&start=25", urls[1]["url"])
	assert.Equal(t, "https://www.linkedin.com/jobs/search?keywords=go+dev&location=Austin&start=50", urls[2]["url"])
	assert.Equal(t, 3, input["maxRequestsPerCrawl"])
	assert.Equal(t, map[string]any{"useApifyProxy": true, "apifyProxyGroups": []string{"RESIDENTIAL"}}, input["proxyConfiguration"])
}

func TestFlattenExpandsNestedArrays(t *testing.T) {
	out := flatten(rawItems(`[[{"a":1}],{"b":2}]`, `{"c":3}`, `[]`))
	require.Len(t, out, 3)
	assert.JSONEq(t, `{"a":1}`, string(out[0]))
	assert.JSONEq(t, `{"b":2}`, string(out[1]))
	assert.JSONEq(t, `{"c":3}`, string(out[2]))
}

func TestLinkedInFetchMergesDetails(t *testing.T) {
	applyPage, err := json.Marshal(map[string]string{
		"jobId": "111",
		"url":   "https://www.linkedin.com/jobs/view/111/",
		"html":  `<div class="description__text"><p>Own the platform.</p></div><a class="apply-button" href="https://jobs.acme.com/111">Apply</a>`,
	})
	require.NoError(t, err)

	runner := newFakeRunner().
		returns(searchActor, `[
			{"title":" Platform Engineer ","company":"Acme","location":"Austin, TX","jobId":"111","listingUrl":"https://www.linkedin.com/jobs/view/111"},
			{"title":"SRE","company":"Acme","jobId":"222","listingUrl":"https://www.linkedin.com/jobs/view/222"},
			{"title":"Overflow","company":"Acme","jobId":"333","listingUrl":"https://www.linkedin.com/jobs/view/333"}
		]`).
		returns(detailActor, string(applyPage))

	items, err := NewLinkedInAdapter(linkedinSource(), runner).Fetch(context.Background(), Query{Text: "platform", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)

	detailInput := runner.inputs[1]
	assert.Len(t, detailInput["startUrls"], 2)

	var first, second linkedinCard
	require.NoError(t, json.Unmarshal(items[0].Data, &first))
	require.NoError(t, json.Unmarshal(items[1].Data, &second))

	assert.Equal(t, models.SourceLinkedIn, items[0].Source)
	assert.Equal(t, "Platform Engineer", first.Title)
	assert.Equal(t, "https://jobs.acme.com/111", first.ApplyURL)
	assert.Equal(t, "Own the platform.", first.Description)

	assert.Equal(t, "https://www.linkedin.com/jobs/view/222", second.ApplyURL)
	assert.Empty(t, second.Description)
}

func TestLinkedInFetchSearchFailureIsFatal(t *testing.T) {
	runner := newFakeRunner()
	_, err := NewLinkedInAdapter(linkedinSource(), runner).Fetch(context.Background(), Query{Text: "go", MaxResults: 10})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "linkedin search"))
	assert.Zero(t, runner.callCount(detailActor))
}

func TestDecodeCardsToleratesOddTypes(t *testing.T) {
	cards := decodeCards(rawItems(
		`{"title":"SRE","company":"Hooli","jobId":4012345678,"listingUrl":"https://www.linkedin.com/jobs/view/4012345678"}`,
		`{"title":["Data Engineer"],"company":{"name":"Initech"},"jobId":null,"listingUrl":"https://www.linkedin.com/jobs/view/data-engineer-at-initech-555"}`,
	))
	require.Len(t, cards, 2)
	assert.Equal(t, "4012345678", cards[0].JobID)
	assert.Equal(t, "Data Engineer", cards[1].Title)
	assert.Equal(t, "Initech", cards[1].Company)
	assert.Equal(t, "555", cards[1].JobID)
}
