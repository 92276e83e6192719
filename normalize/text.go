package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockTags = "p, div, li, ul, ol, br, h1, h2, h3, h4, h5, h6, tr, section, article, header, footer, blockquote, pre"

// CleanText collapses runs of whitespace (including non-breaking spaces)
// into single spaces and trims the result.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from cleaning.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CleanText(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CleanText(s)
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find(blockTags).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
		sel.PrependHtml(" ")
	})

	return CleanText(doc.Text())
}

// FirstNonEmpty returns the first argument that is non-empty after cleaning.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if c := CleanText(v); c != "" {
			return c
		}
	}
	return ""
}
