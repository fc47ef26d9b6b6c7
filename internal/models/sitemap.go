package models

import "time"

// SitemapURL is a URL discovered through sitemap parsing. Keyed by URL;
// the crawl service flips Processed when the URL is visited.
type SitemapURL struct {
	URL        string    `badgerhold:"key" json:"url"`
	Sitemap    string    `json:"sitemap"`  // Sitemap document the URL came from
	Language   string    `json:"language"` // hreflang self-reference, xhtml:link, URL heuristic, or "en"
	Priority   float64   `json:"priority,omitempty"`
	LastMod    string    `json:"lastmod,omitempty"`
	ChangeFreq string    `json:"changefreq,omitempty"`
	Processed  bool      `badgerholdIndex:"Processed" json:"processed"`
	AddedAt    time.Time `json:"added_at"`
}
