package scraper

import (
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"job_scrooper/normalize"
)

// JobDetail is what a LinkedIn posting page contributes to a search card.
type JobDetail struct {
	ApplyURL       string
	Description    string
	EmploymentType string
}

var (
	externalApplyRe = regexp.MustCompile(`externalApply/\d+\?[^"'\s<>]*?url=([^&"'\s<>]+)`)
	applyURLFieldRe = regexp.MustCompile(`"(?:companyApplyUrl|applyUrl|applyURL)"\s*:\s*"((?:[^"\\]|\\.)+)"`)
)

const descriptionSelectors = ".show-more-less-html__markup, .description__text, .jobs-description__content"

const applyAnchorSelectors = `a[data-tracking-control-name*="apply"], a.apply-button, a[href*="externalApply"], a[data-apply-url]`

// ResolveDetail extracts the apply URL and a plain-text description from a
// posting page. Missing pieces are left empty.
func ResolveDetail(markup string) JobDetail {
	var d JobDetail
	if strings.TrimSpace(markup) == "" {
		return d
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		d.ApplyURL = applyURLFromMarkup(markup)
		return d
	}

	postings := jobPostings(doc)

	d.ApplyURL = applyURLFromLinkedData(postings)
	if d.ApplyURL == "" {
		d.ApplyURL = applyURLFromAnchors(doc)
	}
	if d.ApplyURL == "" {
		d.ApplyURL = applyURLFromMarkup(markup)
	}

	if sel := doc.Find(descriptionSelectors).First(); sel.Length() > 0 {
		if inner, err := sel.Html(); err == nil {
			d.Description = normalize.StripHTML(inner)
		}
	}
	if d.Description == "" {
		for _, p := range postings {
			if desc, ok := p["description"].(string); ok && desc != "" {
				d.Description = normalize.StripHTML(html.UnescapeString(desc))
				break
			}
		}
	}

	doc.Find(".description__job-criteria-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		label := strings.ToLower(item.Find(".description__job-criteria-subheader").Text())
		if strings.Contains(label, "employment type") {
			d.EmploymentType = normalize.CleanText(item.Find(".description__job-criteria-text").Text())
			return false
		}
		return true
	})
	if d.EmploymentType == "" {
		for _, p := range postings {
			if et := stringOrFirst(p["employmentType"]); et != "" {
				d.EmploymentType = et
				break
			}
		}
	}

	return d
}

// jobPostings returns every JobPosting object found in the page's JSON-LD
// blocks, including those nested in arrays or @graph.
func jobPostings(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			if typ := stringOrFirst(t["@type"]); strings.EqualFold(typ, "JobPosting") {
				out = append(out, t)
			}
			if g, ok := t["@graph"]; ok {
				walk(g)
			}
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			walk(v)
		}
	})
	return out
}

func applyURLFromLinkedData(postings []map[string]any) string {
	for _, p := range postings {
		candidates := []string{}
		if action, ok := p["potentialAction"].(map[string]any); ok {
			switch target := action["target"].(type) {
			case string:
				candidates = append(candidates, target)
			case map[string]any:
				candidates = append(candidates, stringOrFirst(target["urlTemplate"]))
			}
		}
		candidates = append(candidates, stringOrFirst(p["url"]), stringOrFirst(p["sameAs"]))

		for _, c := range candidates {
			if u := externalURL(c); u != "" {
				return u
			}
		}
	}
	return ""
}

func applyURLFromAnchors(doc *goquery.Document) string {
	var found string
	doc.Find(applyAnchorSelectors).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		for _, attr := range []string{"data-apply-url", "href"} {
			if v, ok := a.Attr(attr); ok {
				if u := externalURL(v); u != "" {
					found = u
					return false
				}
			}
		}
		return true
	})
	return found
}

func applyURLFromMarkup(markup string) string {
	for _, m := range externalApplyRe.FindAllStringSubmatch(markup, -1) {
		if decoded, err := url.QueryUnescape(html.UnescapeString(m[1])); err == nil {
			if u := externalURL(decoded); u != "" {
				return u
			}
		}
	}
	for _, m := range applyURLFieldRe.FindAllStringSubmatch(markup, -1) {
		var s string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err != nil {
			continue
		}
		if u := externalURL(s); u != "" {
			return u
		}
	}
	return ""
}

// externalURL returns raw as an absolute http(s) URL that does not point
// back at LinkedIn, unwrapping LinkedIn's externalApply redirect first.
// Anything else yields "".
func externalURL(raw string) string {
	raw = strings.TrimSpace(html.UnescapeString(raw))
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	if isLinkedInHost(u.Host) {
		if strings.Contains(u.Path, "externalApply") {
			if inner := u.Query().Get("url"); inner != "" {
				return externalURL(inner)
			}
		}
		return ""
	}
	return u.String()
}

func isLinkedInHost(host string) bool {
	host = strings.ToLower(host)
	return host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com") || host == "lnkd.in"
}

func stringOrFirst(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, e := range t {
			if s := stringOrFirst(e); s != "" {
				return s
			}
		}
	}
	return ""
}
