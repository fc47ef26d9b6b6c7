// Package sitemap discovers and parses XML sitemaps: robots.txt
// declarations, common-path probes, sitemap-index recursion and per-URL
// language detection.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/models"
)

const (
	maxSitemapBytes = 50 * 1024 * 1024
	maxSitemapURLs  = 50000
)

// commonPaths are checked via HEAD on every discovery run; robots.txt
// declarations and hits here are merged and deduplicated.
var commonPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemap1.xml",
	"/wp-sitemap.xml",
	"/sitemaps.xml",
}

// Handler receives discovered URLs in batches for persistence.
type Handler func(urls []*models.SitemapURL) error

// Discoverer finds and parses a site's sitemaps through the shared fetcher,
// so sitemap traffic obeys the same politeness rules as the crawl.
type Discoverer struct {
	fetcher *fetch.Fetcher
	logger  arbor.ILogger
}

func NewDiscoverer(fetcher *fetch.Fetcher, logger arbor.ILogger) *Discoverer {
	return &Discoverer{fetcher: fetcher, logger: logger}
}

// Discover locates the site's sitemaps, parses them recursively and pipes
// every URL to the handler. Returns the total URL count.
func (d *Discoverer) Discover(ctx context.Context, baseURL string, handler Handler) (int, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return 0, fmt.Errorf("invalid base URL %q", baseURL)
	}

	sitemaps := d.fromRobots(ctx, base)
	sitemaps = append(sitemaps, d.probeCommonPaths(ctx, base)...)
	sitemaps = dedup(sitemaps)

	d.logger.Info().Int("sitemaps", len(sitemaps)).Str("base", baseURL).Msg("Sitemap discovery complete")

	total := 0
	for _, sm := range sitemaps {
		n, err := d.parse(ctx, sm, handler, &total)
		if err != nil {
			d.logger.Warn().Err(err).Str("sitemap", sm).Msg("Sitemap parse failed")
			continue
		}
		_ = n
		if total >= maxSitemapURLs {
			break
		}
	}
	return total, nil
}

// fromRobots extracts Sitemap: declarations, case-insensitive, relatives
// resolved against the base.
func (d *Discoverer) fromRobots(ctx context.Context, base *url.URL) []string {
	robotsURL := base.Scheme + "://" + base.Host + "/robots.txt"
	resp, err := d.fetcher.Fetch(ctx, robotsURL, nil)
	if err != nil || resp.StatusCode != 200 {
		return nil
	}

	var found []string
	for _, line := range strings.Split(resp.Text(), "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		loc := strings.TrimSpace(line[8:])
		if loc == "" {
			continue
		}
		if ref, err := url.Parse(loc); err == nil {
			found = append(found, base.ResolveReference(ref).String())
		}
	}
	return found
}

// probeCommonPaths HEAD-requests well-known sitemap locations. A 200 with an
// XML content type or an .xml path accepts.
func (d *Discoverer) probeCommonPaths(ctx context.Context, base *url.URL) []string {
	var found []string
	for _, path := range commonPaths {
		candidate := base.Scheme + "://" + base.Host + path
		resp, err := d.fetcher.Head(ctx, candidate)
		if err != nil || resp.StatusCode != 200 {
			continue
		}
		ct := resp.ContentType()
		if strings.Contains(ct, "xml") || strings.HasSuffix(path, ".xml") {
			found = append(found, candidate)
		}
	}
	return found
}

type sitemapIndex struct {
	XMLName  xml.Name      `xml:"sitemapindex"`
	Sitemaps []sitemapNode `xml:"sitemap"`
}

type sitemapNode struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string      `xml:"loc"`
	LastMod    string      `xml:"lastmod"`
	Priority   string      `xml:"priority"`
	ChangeFreq string      `xml:"changefreq"`
	Links      []xhtmlLink `xml:"link"`
}

type xhtmlLink struct {
	Rel      string `xml:"rel,attr"`
	Hreflang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

// parse fetches one sitemap document, recursing through index files. total
// tracks the global URL cap across the recursion.
func (d *Discoverer) parse(ctx context.Context, sitemapURL string, handler Handler, total *int) (int, error) {
	if *total >= maxSitemapURLs {
		return 0, nil
	}

	resp, err := d.fetcher.Fetch(ctx, sitemapURL, nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("sitemap %s returned status %d", sitemapURL, resp.StatusCode)
	}
	if len(resp.Body) > maxSitemapBytes {
		return 0, fmt.Errorf("sitemap %s exceeds %d bytes", sitemapURL, maxSitemapBytes)
	}

	// Index documents recurse; leaf documents yield URLs
	var index sitemapIndex
	if err := xml.Unmarshal(resp.Body, &index); err == nil && len(index.Sitemaps) > 0 {
		count := 0
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			n, err := d.parse(ctx, loc, handler, total)
			if err != nil {
				d.logger.Warn().Err(err).Str("sitemap", loc).Msg("Child sitemap parse failed")
				continue
			}
			count += n
			if *total >= maxSitemapURLs {
				break
			}
		}
		return count, nil
	}

	var set urlSet
	if err := xml.Unmarshal(resp.Body, &set); err != nil {
		return 0, fmt.Errorf("sitemap %s is not valid XML: %w", sitemapURL, err)
	}

	batch := make([]*models.SitemapURL, 0, len(set.URLs))
	for _, entry := range set.URLs {
		if *total >= maxSitemapURLs {
			break
		}
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}

		rec := &models.SitemapURL{
			URL:        loc,
			Sitemap:    sitemapURL,
			Language:   detectLanguage(loc, entry.Links),
			LastMod:    strings.TrimSpace(entry.LastMod),
			ChangeFreq: strings.TrimSpace(entry.ChangeFreq),
		}
		if p, err := strconv.ParseFloat(strings.TrimSpace(entry.Priority), 64); err == nil {
			rec.Priority = p
		}
		batch = append(batch, rec)
		*total++
	}

	if len(batch) > 0 && handler != nil {
		if err := handler(batch); err != nil {
			return 0, err
		}
	}
	return len(batch), nil
}

func dedup(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
