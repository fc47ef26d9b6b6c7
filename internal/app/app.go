// Package app wires the crawl and enrichment pipeline: lock, storage,
// fetcher, sitemap discovery, crawler, model client and reporter.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/crawl"
	"github.com/ternarybob/site2rag/internal/enrich"
	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/llm"
	"github.com/ternarybob/site2rag/internal/models"
	"github.com/ternarybob/site2rag/internal/progress"
	"github.com/ternarybob/site2rag/internal/sitemap"
	"github.com/ternarybob/site2rag/internal/storage/badger"
)

// App holds the assembled pipeline components for one site.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	lock     *common.ProcessLock
	store    *badger.Manager
	fetcher  *fetch.Fetcher
	reporter *progress.Reporter
}

// New acquires the per-site lock and initializes storage and the shared
// fetcher. ErrAnotherInstance surfaces unwrapped so main can exit cleanly.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	stateDir := filepath.Join(cfg.Crawl.OutputDir, common.StateDirName)

	lock, err := common.AcquireLock(stateDir)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Badger.Path == "" {
		cfg.Storage.Badger.Path = filepath.Join(stateDir, "db")
	}
	store, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		lock:     lock,
		store:    store,
		fetcher:  fetch.NewFetcher(&cfg.Crawl, logger),
		reporter: progress.NewReporter(os.Stdout, cfg.Test),
	}

	logger.Debug().
		Str("output_dir", cfg.Crawl.OutputDir).
		Str("db_path", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// Run executes one crawl-then-enrich pass for the seed URL.
func (a *App) Run(ctx context.Context, seed string) error {
	result, err := a.runCrawl(ctx, seed)
	if err != nil {
		return err
	}

	if a.Config.Enrich.Enabled && len(result.URLs) > 0 {
		if err := a.runEnrich(ctx, result.URLs); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// RunScheduled runs one pass immediately, then repeats on the configured
// cron expression until the context is canceled. Incremental change
// detection makes the repeat passes cheap.
func (a *App) RunScheduled(ctx context.Context, seed string) error {
	if err := a.Run(ctx, seed); err != nil && ctx.Err() == nil {
		a.Logger.Warn().Err(err).Msg("Initial scheduled pass failed")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(a.Config.Schedule.Cron, func() {
		if err := a.Run(ctx, seed); err != nil && ctx.Err() == nil {
			a.Logger.Warn().Err(err).Msg("Scheduled pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", a.Config.Schedule.Cron, err)
	}

	a.Logger.Info().Str("cron", a.Config.Schedule.Cron).Msg("Schedule mode active")
	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (a *App) runCrawl(ctx context.Context, seed string) (*crawl.Result, error) {
	crawler := crawl.NewCrawler(a.Config, a.fetcher, a.store, a.Logger)
	crawler.OnPage = a.reporter.Page

	a.discoverSitemaps(ctx, seed, crawler)

	result, err := crawler.Run(ctx, seed)
	if err != nil {
		return nil, err
	}

	for _, url := range result.URLs {
		if merr := a.store.Sitemap().MarkProcessed(url); merr != nil {
			a.Logger.Debug().Err(merr).Str("url", url).Msg("Could not mark sitemap URL processed")
		}
	}

	a.reporter.CrawlSummary(result)
	return result, nil
}

// discoverSitemaps ingests the site's sitemaps and feeds pending URLs into
// the crawl frontier. Discovery failures degrade to a link-walk crawl.
func (a *App) discoverSitemaps(ctx context.Context, seed string, crawler *crawl.Crawler) {
	discoverer := sitemap.NewDiscoverer(a.fetcher, a.Logger)
	count, err := discoverer.Discover(ctx, seed, func(urls []*models.SitemapURL) error {
		return a.store.Sitemap().InsertBatch(urls)
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Sitemap discovery failed, crawling from seed only")
		return
	}
	a.Logger.Info().Int("urls", count).Msg("Sitemap URLs ingested")

	pending, err := a.store.Sitemap().Unprocessed()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Could not load pending sitemap URLs")
		return
	}
	seeds := make([]string, 0, len(pending))
	for _, rec := range pending {
		seeds = append(seeds, rec.URL)
	}
	crawler.SeedURLs(seeds)
}

func (a *App) runEnrich(ctx context.Context, urls []string) error {
	provider, err := llm.NewProvider(ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize llm provider: %w", err)
	}

	tracker := llm.NewTokenTracker(a.Config.Enrich.CostPerMTok)
	client := llm.NewClient(provider, &a.Config.LLM, tracker, a.Logger)
	enricher := enrich.NewEnricher(client, a.store.Pages(), &a.Config.Enrich, a.Logger)

	a.Logger.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Int("candidates", len(urls)).
		Msg("Enrichment starting")

	stats, err := enricher.Run(ctx, urls)
	if stats != nil {
		a.reporter.EnrichSummary(stats)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases storage and the process lock.
func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
