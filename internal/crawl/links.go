package crawl

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/site2rag/internal/urlutil"
)

var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".mp3": true, ".mp4": true,
}

var skippedSchemes = []string{"mailto:", "javascript:", "tel:", "data:"}

// enqueueLinks harvests anchors from the full document and feeds the
// frontier through the domain, pattern and depth gates.
func (c *Crawler) enqueueLinks(base string, parent task, doc *goquery.Document) {
	if c.limitHit.Load() {
		return
	}

	depth := parent.depth + 1
	maxDepth := c.config.Crawl.MaxDepth
	if maxDepth >= 0 && depth > maxDepth {
		return
	}

	parentURL, err := url.Parse(parent.fetchURL)
	if err != nil {
		return
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || hasSkippedScheme(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			// Malformed link: drop, never abort
			return
		}
		abs := parentURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		if c.config.Crawl.SameDomain && !urlutil.IsSameDomain(abs.String(), base) {
			return
		}
		if !urlutil.MatchesPatterns(abs.Path, c.config.Crawl.IncludePatterns) {
			return
		}

		normalized := urlutil.Normalize(abs.String())
		c.frontier.enqueue(task{key: normalized, fetchURL: normalized, depth: depth})

		// A ?resource= parameter naming a binary is also fetched directly
		if resource := abs.Query().Get("resource"); resource != "" && hasBinaryExtension(resource) {
			c.frontier.enqueue(task{
				key:      abs.String(),
				fetchURL: abs.String(),
				depth:    depth,
				binary:   true,
			})
		}
	})
}

func hasSkippedScheme(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func hasBinaryExtension(name string) bool {
	return binaryExtensions[strings.ToLower(path.Ext(name))]
}
