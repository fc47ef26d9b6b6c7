package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/models"
)

func testDiscoverer(t *testing.T) *Discoverer {
	t.Helper()
	cfg := common.NewDefaultConfig().Crawl
	cfg.RequestDelay = 0
	cfg.FollowRobotsTxt = false
	return NewDiscoverer(fetch.NewFetcher(&cfg, common.GetLogger()), common.GetLogger())
}

func collect(urls *[]*models.SitemapURL) Handler {
	return func(batch []*models.SitemapURL) error {
		*urls = append(*urls, batch...)
		return nil
	}
}

func TestDiscoverFromRobots(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nAllow: /\nSITEMAP: %s/custom-map.xml\nsitemap: /relative-map.xml\n", srvURL)
	})
	mux.HandleFunc("/custom-map.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<url><loc>https://example.com/a</loc><lastmod>2024-06-01</lastmod><priority>0.8</priority><changefreq>weekly</changefreq></url>
				<url><loc>https://example.com/b</loc></url>
			</urlset>`)
	})
	mux.HandleFunc("/relative-map.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/c</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)

	assert.Equal(t, 3, total)
	require.Len(t, urls, 3)
	assert.Equal(t, "https://example.com/a", urls[0].URL)
	assert.Equal(t, "2024-06-01", urls[0].LastMod)
	assert.Equal(t, 0.8, urls[0].Priority)
	assert.Equal(t, "weekly", urls[0].ChangeFreq)
}

func TestDiscoverProbesCommonPathsWithoutRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/only</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDiscoverMergesRobotsAndCommonPaths(t *testing.T) {
	// robots.txt names only a custom map; the well-known /sitemap.xml also
	// exists and must be picked up alongside it
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/custom-map.xml\n", srvURL)
	})
	mux.HandleFunc("/custom-map.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/from-robots</loc></url></urlset>`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/from-probe</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)

	assert.Equal(t, 2, total)
	locs := make([]string, 0, len(urls))
	for _, u := range urls {
		locs = append(locs, u.URL)
	}
	assert.ElementsMatch(t, []string{"https://example.com/from-robots", "https://example.com/from-probe"}, locs)
}

func TestDiscoverDeduplicatesSitemapSources(t *testing.T) {
	// /sitemap.xml appears in robots.txt and as a common-path hit; it must
	// be parsed once
	var gets atomic.Int32
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srvURL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/once</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)

	assert.Equal(t, 1, total)
	assert.Equal(t, int32(1), gets.Load())
}

func TestSitemapIndexRecursion(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/index.xml\n", srvURL)
	})
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<sitemapindex>
			<sitemap><loc>%s/part1.xml</loc></sitemap>
			<sitemap><loc>%s/part2.xml</loc></sitemap>
		</sitemapindex>`, srvURL, srvURL)
	})
	mux.HandleFunc("/part1.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/1</loc></url></urlset>`)
	})
	mux.HandleFunc("/part2.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/2</loc></url><url><loc>https://example.com/3</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, urls, 3)
}

func TestBrokenChildSitemapIsSkipped(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/index.xml\n", srvURL)
	})
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex>
			<sitemap><loc>%s/broken.xml</loc></sitemap>
			<sitemap><loc>%s/good.xml</loc></sitemap>
		</sitemapindex>`, srvURL, srvURL)
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not xml <<<")
	})
	mux.HandleFunc("/good.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/ok</loc></url></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var urls []*models.SitemapURL
	total, err := testDiscoverer(t).Discover(context.Background(), srv.URL, collect(&urls))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDetectLanguage(t *testing.T) {
	loc := "https://example.com/fr/page"

	// hreflang self-reference wins
	links := []xhtmlLink{
		{Rel: "alternate", Hreflang: "de-DE", Href: loc},
		{Rel: "alternate", Hreflang: "en", Href: "https://example.com/en/page"},
	}
	assert.Equal(t, "de", detectLanguage(loc, links))

	// URL segment heuristic
	assert.Equal(t, "fr", detectLanguage(loc, nil))
	assert.Equal(t, "pt", detectLanguage("https://example.com/pt-br/page", nil))

	// Non-language two-letter segments fall through to the canonical default
	assert.Equal(t, "en", detectLanguage("https://example.com/id/1234", nil))
	assert.Equal(t, "en", detectLanguage("https://example.com/docs/page", nil))
}
