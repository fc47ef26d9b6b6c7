package enrich

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/llm"
	"github.com/ternarybob/site2rag/internal/markdown"
	"github.com/ternarybob/site2rag/internal/models"
	"github.com/ternarybob/site2rag/internal/storage/badger"
)

// Enricher runs the context-enrichment phase over a crawl session's
// Markdown files. Each document gets its own model session carrying the
// document-level instructions; each paragraph is annotated at most once.
type Enricher struct {
	client *llm.Client
	pages  *badger.PageStorage
	config *common.EnrichConfig
	logger arbor.ILogger

	mu    sync.Mutex
	stats models.EnrichStats
}

func NewEnricher(client *llm.Client, pages *badger.PageStorage, config *common.EnrichConfig, logger arbor.ILogger) *Enricher {
	return &Enricher{
		client: client,
		pages:  pages,
		config: config,
		logger: logger,
	}
}

// Run enriches every eligible page among the session's URLs, then makes a
// cleanup pass over pages that landed in a retryable failure state.
func (e *Enricher) Run(ctx context.Context, urls []string) (*models.EnrichStats, error) {
	candidates, err := e.pages.PagesMatching(urls, []models.ContentStatus{
		models.ContentStatusRaw,
		models.ContentStatusFailed,
		models.ContentStatusProcessing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list enrichment candidates: %w", err)
	}

	for _, page := range candidates {
		if ctx.Err() != nil {
			break
		}
		e.enrichPage(ctx, page)
	}

	e.cleanup(ctx, urls)

	e.mu.Lock()
	e.stats.Tokens = e.client.Tracker().Tokens()
	e.stats.Cost = e.client.Tracker().Cost()
	snapshot := e.stats
	e.mu.Unlock()
	return &snapshot, ctx.Err()
}

// cleanup retries pages stranded in rate_limited, timeout or failed, with a
// gap between documents so a throttling provider gets room to recover.
func (e *Enricher) cleanup(ctx context.Context, urls []string) {
	stranded, err := e.pages.PagesMatching(urls, models.RetryableStatuses())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Cleanup phase could not list stranded pages")
		return
	}
	if len(stranded) == 0 {
		return
	}

	e.logger.Info().Int("pages", len(stranded)).Msg("Cleanup phase retrying stranded pages")
	for i, page := range stranded {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && e.config.CleanupGap > 0 {
			timer := time.NewTimer(e.config.CleanupGap)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		e.enrichPage(ctx, page)
	}
}

func (e *Enricher) enrichPage(ctx context.Context, page *models.Page) {
	e.count(func(s *models.EnrichStats) { s.Documents++ })

	if page.FilePath == "" {
		e.fail(page.URL, models.ContentStatusFailed, "page has no file")
		return
	}
	raw, err := os.ReadFile(page.FilePath)
	if err != nil {
		e.fail(page.URL, models.ContentStatusFailed, err.Error())
		return
	}

	front, body := splitFrontMatter(string(raw))
	paragraphs := SplitParagraphs(body)
	if len(paragraphs) == 0 {
		// Nothing to annotate; the document is done as written
		e.pages.SetContentStatus(page.URL, models.ContentStatusContexted)
		e.count(func(s *models.EnrichStats) { s.Enriched++ })
		return
	}

	if err := e.pages.SetContentStatus(page.URL, models.ContentStatusProcessing); err != nil {
		e.logger.Warn().Err(err).Str("url", page.URL).Msg("Could not claim page for enrichment")
		return
	}

	title, docURL, description := frontMatterIdentity(front, page)
	sessionID := uuid.NewString()
	e.client.Sessions().Open(sessionID, Instructions(title, docURL, description))
	defer e.client.Sessions().Close(sessionID)

	windowWords, _ := llm.WindowFor(e.client.Provider().Model())
	windows := Plan(paragraphs, windowWords, e.config.BatchWords)

	enriched := make([]string, len(paragraphs))
	copy(enriched, paragraphs)
	annotated := make([]bool, len(paragraphs))
	pageFailed := false

	for _, window := range windows {
		for bi := range window.Batches {
			batch := pendingBatch(&window.Batches[bi], annotated, paragraphs)
			if batch == nil {
				continue
			}

			resp, err := e.callBatch(ctx, sessionID, &window, batch)
			if err != nil {
				switch {
				case errors.Is(err, llm.ErrRateLimited):
					e.fail(page.URL, models.ContentStatusRateLimited, err.Error())
					return
				case errors.Is(err, context.DeadlineExceeded):
					e.fail(page.URL, models.ContentStatusTimeout, err.Error())
					return
				case ctx.Err() != nil:
					e.pages.SetContentStatus(page.URL, models.ContentStatusFailed)
					return
				}
				e.logger.Warn().Err(err).Str("url", page.URL).Msg("Batch permanently failed, keeping originals")
				pageFailed = true
				for _, idx := range batch.Indices {
					annotated[idx] = true
				}
				continue
			}

			for i, idx := range batch.Indices {
				original := paragraphs[idx]
				candidate := resp.EnhancedParagraphs[i].Text
				annotated[idx] = true
				e.count(func(s *models.EnrichStats) { s.Paragraphs++ })

				if candidate == original {
					continue
				}
				if !Preserved(original, candidate) || !AnnotationsOutsideMarkup(candidate) {
					e.logger.Debug().Str("url", page.URL).Int("paragraph", idx).
						Msg("Enhancement discarded by preservation check")
					continue
				}
				enriched[idx] = candidate
				e.count(func(s *models.EnrichStats) { s.Annotated++ })
			}
		}
	}

	if pageFailed {
		e.fail(page.URL, models.ContentStatusFailed, "one or more batches failed")
		return
	}

	body = JoinParagraphs(enriched)
	doc := markdown.Document(front, body)
	if err := os.WriteFile(page.FilePath, []byte(doc), 0o644); err != nil {
		e.fail(page.URL, models.ContentStatusFailed, err.Error())
		return
	}

	hash := common.ContentHash(body)
	now := time.Now()
	_, err = e.pages.UpsertPage(page.URL, &models.PageUpdate{
		ContentHash:   models.Ptr(hash),
		ContentStatus: models.Ptr(models.ContentStatusContexted),
		LastUpdated:   models.Ptr(now),
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("url", page.URL).Msg("Could not record enrichment result")
		return
	}

	hits, _ := e.client.Sessions().Stats(sessionID)
	e.logger.Info().
		Str("url", page.URL).
		Int("paragraphs", len(paragraphs)).
		Int("cache_hits", hits).
		Msg("Document enriched")
	e.count(func(s *models.EnrichStats) { s.Enriched++ })
}

// callBatch retries a batch call when the response arrives with the wrong
// paragraph count or with paragraphs that fail the preservation or markup
// checks. Transport and JSON failures are already retried inside the client;
// this layer re-asks for structurally or semantically wrong answers. When
// retries run out on preservation failures, the last complete response is
// returned so valid paragraphs still land and the rest keep their originals.
func (e *Enricher) callBatch(ctx context.Context, sessionID string, window *Window, batch *Batch) (*BatchResponse, error) {
	attempts := e.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	prompt := BatchPrompt(window, batch)
	var lastErr error
	var lastResp *BatchResponse
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp BatchResponse
		if err := e.client.Call(ctx, sessionID, prompt, &resp); err != nil {
			if errors.Is(err, llm.ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(resp.EnhancedParagraphs) != len(batch.Paragraphs) {
			lastErr = fmt.Errorf("expected %d paragraphs, got %d", len(batch.Paragraphs), len(resp.EnhancedParagraphs))
			continue
		}
		if bad := invalidEnhancements(batch, &resp); bad > 0 {
			lastResp = &resp
			lastErr = fmt.Errorf("%d of %d paragraphs failed preservation", bad, len(batch.Paragraphs))
			e.logger.Debug().Int("attempt", attempt).Int("invalid", bad).
				Msg("Re-requesting batch after preservation failure")
			continue
		}
		return &resp, nil
	}
	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// invalidEnhancements counts response paragraphs that changed the original
// text or placed an annotation inside Markdown markup.
func invalidEnhancements(batch *Batch, resp *BatchResponse) int {
	bad := 0
	for i, original := range batch.Paragraphs {
		candidate := resp.EnhancedParagraphs[i].Text
		if candidate == original {
			continue
		}
		if !Preserved(original, candidate) || !AnnotationsOutsideMarkup(candidate) {
			bad++
		}
	}
	return bad
}

// pendingBatch filters a batch down to paragraphs not yet covered by an
// earlier window. Overlapping windows revisit paragraphs; each is sent to
// the model at most once.
func pendingBatch(batch *Batch, annotated []bool, paragraphs []string) *Batch {
	var out Batch
	for _, idx := range batch.Indices {
		if annotated[idx] {
			continue
		}
		out.Indices = append(out.Indices, idx)
		out.Paragraphs = append(out.Paragraphs, paragraphs[idx])
	}
	if len(out.Indices) == 0 {
		return nil
	}
	return &out
}

func (e *Enricher) fail(url string, status models.ContentStatus, reason string) {
	e.logger.Warn().Str("url", url).Str("status", string(status)).Str("reason", reason).
		Msg("Document enrichment failed")
	e.pages.SetContentStatus(url, status)
	e.count(func(s *models.EnrichStats) { s.Failed++ })
}

func (e *Enricher) count(fn func(*models.EnrichStats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

// splitFrontMatter separates the leading --- fenced YAML block from the
// Markdown body. Files without front-matter come back with an empty front.
func splitFrontMatter(content string) (front, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return "", content
	}
	front = content[:len("---\n")+end+len("\n---\n")]
	body = rest[end+len("\n---\n"):]
	return front, strings.TrimLeft(body, "\n")
}

// frontMatterIdentity pulls title, url and description for the session
// instructions, falling back to the stored page row.
func frontMatterIdentity(front string, page *models.Page) (title, url, description string) {
	title, url = page.Title, page.URL

	inner := strings.TrimPrefix(front, "---\n")
	inner = strings.TrimSuffix(inner, "---\n")
	var fm struct {
		Title       string `yaml:"title"`
		URL         string `yaml:"url"`
		Description string `yaml:"description"`
	}
	if err := yaml.Unmarshal([]byte(inner), &fm); err != nil {
		return title, url, ""
	}
	if fm.Title != "" {
		title = fm.Title
	}
	if fm.URL != "" {
		url = fm.URL
	}
	return title, url, fm.Description
}
