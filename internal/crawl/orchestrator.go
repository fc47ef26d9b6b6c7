package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/extract"
	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/markdown"
	"github.com/ternarybob/site2rag/internal/metadata"
	"github.com/ternarybob/site2rag/internal/models"
	"github.com/ternarybob/site2rag/internal/storage/badger"
	"github.com/ternarybob/site2rag/internal/urlutil"
)

// ErrCrawlLimitReached is the orderly termination signal raised when the
// max-pages budget is spent. The orchestrator converts it into a clean
// return, never an error.
var ErrCrawlLimitReached = errors.New("crawl limit reached")

// Outcome labels for the per-page progress callback.
const (
	OutcomeWritten = "written"
	OutcomeFresh   = "fresh"
	OutcomeBinary  = "binary"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Result summarizes one crawl run. URLs holds the normalized URLs that
// completed with 2xx or 304 this session; the enrichment service uses it
// to scope its work.
type Result struct {
	Stats    models.CrawlStats
	Detector models.DetectorStats
	URLs     []string
}

// Crawler walks a site from a seed URL through the fetch, change-detect,
// extract, convert and write pipeline with a bounded worker pool.
type Crawler struct {
	config   *common.Config
	fetcher  *fetch.Fetcher
	detector *Detector
	extract  *extract.Extractor
	store    *badger.Manager
	logger   arbor.ILogger

	// OnPage, when set, receives every per-URL outcome for progress display.
	OnPage func(url, outcome string)

	frontier *frontier
	found    atomic.Int64

	mu      sync.Mutex
	stats   models.CrawlStats
	session []string

	binaries *binaryStore
	limitHit atomic.Bool
}

// NewCrawler wires the crawl pipeline from shared components.
func NewCrawler(config *common.Config, fetcher *fetch.Fetcher, store *badger.Manager, logger arbor.ILogger) *Crawler {
	return &Crawler{
		config:   config,
		fetcher:  fetcher,
		detector: NewDetector(store.Pages(), &config.Crawl, logger),
		extract:  extract.New(logger),
		store:    store,
		logger:   logger,
		frontier: newFrontier(),
		binaries: newBinaryStore(&config.Crawl, logger),
	}
}

// Detector exposes per-tier change-detection stats for reporting.
func (c *Crawler) Detector() *Detector { return c.detector }

// SeedURLs queues extra start URLs, typically sitemap discoveries. Include
// patterns still apply. Call before Run.
func (c *Crawler) SeedURLs(urls []string) {
	for _, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" {
			continue
		}
		if !urlutil.MatchesPatterns(parsed.Path, c.config.Crawl.IncludePatterns) {
			continue
		}
		n := urlutil.Normalize(u)
		c.frontier.enqueue(task{key: n, fetchURL: n, depth: 0})
	}
}

// Run crawls from the seed until the frontier drains, the page budget is
// spent, or the context is canceled. An invalid seed is the only hard error.
func (c *Crawler) Run(ctx context.Context, seed string) (*Result, error) {
	seedURL, err := url.Parse(strings.TrimSpace(seed))
	if err != nil || seedURL.Host == "" || (seedURL.Scheme != "http" && seedURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid seed URL %q", seed)
	}

	base := urlutil.RegisteredDomain(seed)
	normalized := urlutil.Normalize(seed)
	c.frontier.enqueue(task{key: normalized, fetchURL: normalized, depth: 0})

	stop := context.AfterFunc(ctx, c.frontier.stop)
	defer stop()

	workers := c.config.Crawl.MaxConcurrency
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		common.SafeGo(c.logger, "crawl-worker", &wg, func() {
			c.worker(ctx, base)
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && !c.limitHit.Load() {
		return c.result(), err
	}

	c.logger.Info().
		Int("crawled", c.stats.Crawled).
		Int("written", c.stats.Written).
		Int("fresh", c.stats.Fresh).
		Int("errors", c.stats.Errors).
		Bool("limit_reached", c.limitHit.Load()).
		Msg("Crawl finished")

	return c.result(), nil
}

func (c *Crawler) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Result{
		Stats:    c.stats,
		Detector: c.detector.Stats(),
		URLs:     append([]string(nil), c.session...),
	}
}

func (c *Crawler) worker(ctx context.Context, base string) {
	for {
		t, ok := c.frontier.next()
		if !ok {
			return
		}
		if err := c.process(ctx, base, t); err != nil {
			if errors.Is(err, ErrCrawlLimitReached) {
				c.limitHit.Store(true)
				c.frontier.stop()
			} else {
				c.logger.Warn().Err(err).Str("url", t.fetchURL).Msg("URL failed")
			}
		}
		c.frontier.done()
	}
}

// process runs one URL through the state machine:
// fetch -> 304/fresh | binary | extract -> convert -> write -> raw.
func (c *Crawler) process(ctx context.Context, base string, t task) error {
	if !c.fetcher.CanCrawl(ctx, t.fetchURL) {
		c.report(t.key, OutcomeSkipped)
		return nil
	}

	stored, err := c.store.Pages().GetPage(t.key)
	if err != nil {
		return err
	}
	now := time.Now()
	if c.detector.SkipByAge(stored, now) {
		c.report(t.key, OutcomeSkipped)
		return nil
	}

	resp, err := c.fetcher.Fetch(ctx, t.fetchURL, &fetch.Options{
		Headers: c.detector.ConditionalHeaders(t.key),
	})
	if err != nil {
		c.recordError(t.key, 0, now)
		return fmt.Errorf("fetch: %w", err)
	}

	switch {
	case resp.StatusCode == 304:
		return c.markFresh(t.key, now)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if c.detector.UnchangedByHeaders(stored, resp.Headers.Get("ETag"), resp.Headers.Get("Last-Modified")) {
			return c.markFresh(t.key, now)
		}
		if t.binary || isBinaryContentType(resp.ContentType()) {
			return c.processBinary(t, resp, now)
		}
		return c.processHTML(ctx, base, t, stored, resp, now)

	default:
		// 4xx/5xx: record the status, drop the body, carry on
		c.recordError(t.key, resp.StatusCode, now)
		return nil
	}
}

func (c *Crawler) processHTML(ctx context.Context, base string, t task, stored *models.Page, resp *fetch.Response, now time.Time) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text()))
	if err != nil {
		c.recordError(t.key, resp.StatusCode, now)
		return fmt.Errorf("parse HTML: %w", err)
	}

	// Links come from the full document, before boilerplate removal:
	// navigation is exactly where a site links its pages.
	c.enqueueLinks(base, t, doc)

	extracted := c.extract.Extract(doc, t.key)
	if extracted.Content == nil || strings.TrimSpace(extracted.Content.Text()) == "" {
		// Keep the row with no file; nothing to enrich
		_, uerr := c.store.Pages().UpsertPage(t.key, &models.PageUpdate{
			Status:      models.Ptr(resp.StatusCode),
			LastCrawled: &now,
		})
		c.bump(func(s *models.CrawlStats) { s.Crawled++ })
		c.report(t.key, OutcomeSkipped)
		return uerr
	}

	meta := metadata.Extract(doc)

	conv, err := markdown.NewConverter(t.fetchURL)
	if err != nil {
		return err
	}
	body, err := conv.Convert(extracted.Content)
	if err != nil {
		c.recordError(t.key, resp.StatusCode, now)
		return fmt.Errorf("convert to markdown: %w", err)
	}

	hash := ContentHash(body)
	if c.detector.UnchangedByHash(stored, hash) {
		return c.markFresh(t.key, now)
	}

	// Claim a page slot before writing so the budget is exact
	if err := c.claimSlot(); err != nil {
		return err
	}

	front, err := markdown.FrontMatter(meta, t.key, now)
	if err != nil {
		return err
	}
	filePath, err := c.writeMarkdown(t.key, markdown.Document(front, body))
	if err != nil {
		c.recordError(t.key, resp.StatusCode, now)
		return fmt.Errorf("write markdown: %w", err)
	}
	if c.config.Debug {
		c.writeDebugReport(t.key, extracted)
	}

	title := meta.Title
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	_, err = c.store.Pages().UpsertPage(t.key, &models.PageUpdate{
		ETag:          models.Ptr(resp.Headers.Get("ETag")),
		LastModified:  models.Ptr(resp.Headers.Get("Last-Modified")),
		ContentHash:   &hash,
		Status:        models.Ptr(resp.StatusCode),
		LastCrawled:   &now,
		LastUpdated:   &now,
		Title:         &title,
		FilePath:      &filePath,
		ContentStatus: models.Ptr(models.ContentStatusRaw),
	})
	if err != nil {
		return err
	}

	c.detector.RecordOutcome(stored == nil)
	c.bump(func(s *models.CrawlStats) {
		s.Crawled++
		s.Written++
	})
	c.addSession(t.key)
	c.report(t.key, OutcomeWritten)
	return nil
}

func (c *Crawler) processBinary(t task, resp *fetch.Response, now time.Time) error {
	if err := c.claimSlot(); err != nil {
		return err
	}

	saved, err := c.binaries.save(t.fetchURL, resp)
	if err != nil {
		c.recordError(t.key, resp.StatusCode, now)
		return err
	}

	update := &models.PageUpdate{
		ETag:         models.Ptr(resp.Headers.Get("ETag")),
		LastModified: models.Ptr(resp.Headers.Get("Last-Modified")),
		Status:       models.Ptr(resp.StatusCode),
		LastCrawled:  &now,
		LastUpdated:  &now,
		FilePath:     &saved.Path,
	}
	if saved.PDFPages > 0 {
		update.PDFPages = &saved.PDFPages
	}
	if _, err := c.store.Pages().UpsertPage(t.key, update); err != nil {
		return err
	}

	c.bump(func(s *models.CrawlStats) {
		s.Crawled++
		s.Binaries++
	})
	c.addSession(t.key)
	c.report(t.key, OutcomeBinary)
	return nil
}

// claimSlot reserves one unit of the max-pages budget. Exceeding the budget
// raises the crawl-limit signal.
func (c *Crawler) claimSlot() error {
	max := c.config.Crawl.MaxPages
	if max < 0 {
		c.found.Add(1)
		return nil
	}
	if c.found.Add(1) > int64(max) {
		return ErrCrawlLimitReached
	}
	return nil
}

func (c *Crawler) markFresh(key string, now time.Time) error {
	if err := c.store.Pages().TouchLastCrawled(key, now); err != nil {
		return err
	}
	c.bump(func(s *models.CrawlStats) {
		s.Crawled++
		s.Fresh++
	})
	c.addSession(key)
	c.report(key, OutcomeFresh)
	return nil
}

func (c *Crawler) recordError(key string, status int, now time.Time) {
	if _, err := c.store.Pages().UpsertPage(key, &models.PageUpdate{
		Status:      &status,
		LastCrawled: &now,
	}); err != nil {
		c.logger.Warn().Err(err).Str("url", key).Msg("Failed to record error status")
	}
	c.bump(func(s *models.CrawlStats) {
		s.Crawled++
		s.Errors++
	})
	c.report(key, OutcomeError)
}

func (c *Crawler) bump(fn func(*models.CrawlStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *Crawler) addSession(key string) {
	c.mu.Lock()
	c.session = append(c.session, key)
	c.mu.Unlock()
}

func (c *Crawler) report(url, outcome string) {
	if c.OnPage != nil {
		c.OnPage(url, outcome)
	}
}
