package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/models"
	"github.com/ternarybob/site2rag/internal/storage/badger"
	"github.com/ternarybob/site2rag/internal/urlutil"
)

func testCrawler(t *testing.T, mutate func(*common.Config)) (*Crawler, *badger.Manager) {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Crawl.OutputDir = t.TempDir()
	cfg.Crawl.RequestDelay = 0
	if mutate != nil {
		mutate(cfg)
	}

	mgr, err := badger.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	fetcher := fetch.NewFetcher(&cfg.Crawl, common.GetLogger())
	return NewCrawler(cfg, fetcher, mgr, common.GetLogger()), mgr
}

func page(title, body string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><main>")
	b.WriteString("<h1>" + title + "</h1><p>" + body + "</p>")
	for _, l := range links {
		fmt.Fprintf(&b, `<p><a href="%s">link</a></p>`, l)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func countMarkdownFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".md") && !strings.Contains(path, common.StateDirName) {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestCrawlWalksInternalLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Home", strings.Repeat("Welcome text. ", 30), "/a", "/b"))
		case "/a":
			fmt.Fprint(w, page("A", strings.Repeat("Alpha content. ", 30)))
		case "/b":
			fmt.Fprint(w, page("B", strings.Repeat("Beta content. ", 30)))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, mgr := testCrawler(t, nil)
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.Written)
	assert.Equal(t, 3, countMarkdownFiles(t, c.config.Crawl.OutputDir))

	home, err := mgr.Pages().GetPage(urlutil.Normalize(srv.URL))
	require.NoError(t, err)
	require.NotNil(t, home)
	assert.Equal(t, models.ContentStatusRaw, home.ContentStatus)
	assert.Equal(t, "Home", home.Title)
	assert.NotZero(t, home.ContentHash)
	assert.FileExists(t, home.FilePath)
}

func TestCrawlLimitIsExactAndOrderly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// 10 fully interlinked pages
		links := make([]string, 0, 10)
		for i := 0; i < 10; i++ {
			links = append(links, fmt.Sprintf("/p%d", i))
		}
		fmt.Fprint(w, page("P"+r.URL.Path, strings.Repeat("Text content here. ", 30), links...))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := testCrawler(t, func(cfg *common.Config) {
		cfg.Crawl.MaxPages = 3
	})

	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err, "limit termination is not an error")
	assert.Equal(t, 3, result.Stats.Written)
	assert.Equal(t, 3, countMarkdownFiles(t, c.config.Crawl.OutputDir))
}

func TestConditionalRevalidationKeepsContexted(t *testing.T) {
	var etagHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("If-None-Match") == `W/"abc"` {
			etagHits.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `W/"abc"`)
		fmt.Fprint(w, page("Home", strings.Repeat("Stable content. ", 30)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, mgr := testCrawler(t, nil)
	_, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	key := urlutil.Normalize(srv.URL)
	pageRow, err := mgr.Pages().GetPage(key)
	require.NoError(t, err)
	require.NotNil(t, pageRow)
	assert.Equal(t, `W/"abc"`, pageRow.ETag)
	firstCrawled := pageRow.LastCrawled

	// Simulate enrichment completing between runs
	require.NoError(t, mgr.Pages().SetContentStatus(key, models.ContentStatusContexted))
	fileBefore, err := os.ReadFile(pageRow.FilePath)
	require.NoError(t, err)

	c2, _ := testCrawler(t, nil)
	c2.store = mgr
	c2.detector = NewDetector(mgr.Pages(), &c2.config.Crawl, common.GetLogger())
	result, err := c2.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Positive(t, etagHits.Load())
	assert.Equal(t, 1, result.Stats.Fresh)
	assert.Zero(t, result.Stats.Written)

	after, err := mgr.Pages().GetPage(key)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusContexted, after.ContentStatus, "304 must not reset enrichment state")
	assert.True(t, after.LastCrawled.After(firstCrawled))

	fileAfter, err := os.ReadFile(pageRow.FilePath)
	require.NoError(t, err)
	assert.Equal(t, fileBefore, fileAfter, "no Markdown rewrite on fresh pages")
}

func TestSameDomainConfinement(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Home", strings.Repeat("Content. ", 30), "http://external.invalid/other"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := testCrawler(t, nil)
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	// The off-domain link is dropped at the gate: had it been fetched, the
	// unresolvable host would surface as a fetch error
	assert.Equal(t, 1, result.Stats.Written)
	assert.Zero(t, result.Stats.Errors)
}

func TestErrorStatusRecordedAndCrawlContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Home", strings.Repeat("Content. ", 30), "/gone", "/ok"))
		case "/ok":
			fmt.Fprint(w, page("OK", strings.Repeat("More content. ", 30)))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, mgr := testCrawler(t, nil)
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Written)
	assert.Equal(t, 1, result.Stats.Errors)

	gone, err := mgr.Pages().GetPage(urlutil.Normalize(srv.URL + "/gone"))
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.Equal(t, 404, gone.Status)
	assert.Empty(t, gone.FilePath)
}

func TestInvalidSeedIsRejected(t *testing.T) {
	c, _ := testCrawler(t, nil)
	_, err := c.Run(context.Background(), "not a url")
	require.Error(t, err)
	_, err = c.Run(context.Background(), "ftp://example.com/")
	require.Error(t, err)
}

func TestBinaryDetection(t *testing.T) {
	assert.True(t, isBinaryContentType("application/pdf"))
	assert.True(t, isBinaryContentType("image/png"))
	assert.True(t, isBinaryContentType("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.False(t, isBinaryContentType("text/html"))
	assert.False(t, isBinaryContentType("application/json"))
}

func TestBinarySaveAndDedup(t *testing.T) {
	payload := []byte("%PDF-fake-not-a-real-pdf")
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Home", strings.Repeat("Content. ", 30), "/files/a.zip", "/files/b.zip"))
		default:
			w.Header().Set("Content-Type", "application/zip")
			w.Write(payload)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, mgr := testCrawler(t, func(cfg *common.Config) {
		// Single worker so the dedup check observes the first save
		cfg.Crawl.MaxConcurrency = 1
	})
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Binaries)

	a, err := mgr.Pages().GetPage(urlutil.Normalize(srv.URL + "/files/a.zip"))
	require.NoError(t, err)
	b, err := mgr.Pages().GetPage(urlutil.Normalize(srv.URL + "/files/b.zip"))
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.FilePath, b.FilePath, "identical content shares one saved file")

	entries, err := os.ReadDir(filepath.Join(c.config.Crawl.OutputDir, "documents"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBinaryOversizeRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Home", strings.Repeat("Content. ", 30), "/big.zip"))
		default:
			w.Header().Set("Content-Type", "application/zip")
			w.Write(make([]byte, 2048))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := testCrawler(t, func(cfg *common.Config) {
		cfg.Crawl.MaxDocumentSize = 1024
	})
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Zero(t, result.Stats.Binaries)
	assert.Equal(t, 1, result.Stats.Errors)
	assert.NoDirExists(t, filepath.Join(c.config.Crawl.OutputDir, "documents"))
}

func TestResourceParameterQueuesDirectDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("resource") != "" {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 fake"))
			return
		}
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Home", strings.Repeat("Content. ", 30), "/download?resource=report.pdf"))
		case "/download":
			fmt.Fprint(w, page("Download", strings.Repeat("Landing page. ", 30)))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := testCrawler(t, nil)
	result, err := c.Run(context.Background(), srv.URL)
	require.NoError(t, err)

	// The landing page and the direct resource are both fetched
	assert.Equal(t, 2, result.Stats.Written)
	assert.Equal(t, 1, result.Stats.Binaries)
}
