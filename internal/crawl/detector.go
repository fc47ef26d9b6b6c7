// Package crawl implements the crawl orchestrator: frontier management,
// change detection, binary handling and the per-URL fetch/extract/convert
// pipeline.
package crawl

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/models"
	"github.com/ternarybob/site2rag/internal/storage/badger"
)

// ContentHash computes the extracted-content hash used by tier 4.
func ContentHash(content string) uint32 {
	return common.ContentHash(content)
}

// Detector decides whether a URL's content changed since the last crawl.
// Tiers run fastest-first: age filter, ETag, Last-Modified, content hash.
// Any tier reporting unchanged short-circuits body processing.
type Detector struct {
	pages  *badger.PageStorage
	config *common.CrawlConfig
	logger arbor.ILogger

	mu    sync.Mutex
	stats models.DetectorStats
}

func NewDetector(pages *badger.PageStorage, config *common.CrawlConfig, logger arbor.ILogger) *Detector {
	return &Detector{pages: pages, config: config, logger: logger}
}

// SkipByAge is tier 1: a page crawled within minAgeHours is skipped unless
// it was also updated within fastRecheckHours (recently changing pages get
// rechecked sooner).
func (d *Detector) SkipByAge(page *models.Page, now time.Time) bool {
	if page == nil || d.config.MinAgeHours <= 0 || page.LastCrawled.IsZero() {
		return false
	}
	if now.Sub(page.LastCrawled) >= time.Duration(d.config.MinAgeHours)*time.Hour {
		return false
	}
	if d.config.FastRecheckHours > 0 && !page.LastUpdated.IsZero() &&
		now.Sub(page.LastUpdated) < time.Duration(d.config.FastRecheckHours)*time.Hour {
		return false
	}

	d.count(func(s *models.DetectorStats) { s.SkippedByAge++ })
	return true
}

// ConditionalHeaders builds If-None-Match / If-Modified-Since from the
// stored row for revalidation.
func (d *Detector) ConditionalHeaders(url string) map[string]string {
	page, err := d.pages.GetPage(url)
	if err != nil || page == nil {
		return nil
	}

	headers := make(map[string]string, 2)
	if page.ETag != "" {
		headers["If-None-Match"] = page.ETag
	}
	if page.LastModified != "" {
		headers["If-Modified-Since"] = page.LastModified
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// UnchangedByHeaders runs tiers 2 and 3 against the response validators.
func (d *Detector) UnchangedByHeaders(page *models.Page, etag, lastModified string) bool {
	if page == nil {
		return false
	}
	if etag != "" && page.ETag == etag {
		d.count(func(s *models.DetectorStats) { s.SkippedByETag++ })
		return true
	}
	if lastModified != "" && page.LastModified == lastModified {
		d.count(func(s *models.DetectorStats) { s.SkippedByLastModified++ })
		return true
	}
	return false
}

// UnchangedByHash is tier 4, comparing the extracted-content hash.
func (d *Detector) UnchangedByHash(page *models.Page, hash uint32) bool {
	if page == nil || page.ContentHash == 0 {
		return false
	}
	if page.ContentHash == hash {
		d.count(func(s *models.DetectorStats) { s.SkippedByHash++ })
		return true
	}
	return false
}

// RecordOutcome tallies a changed/new decision.
func (d *Detector) RecordOutcome(isNew bool) {
	d.count(func(s *models.DetectorStats) {
		if isNew {
			s.New++
		} else {
			s.Updated++
		}
	})
}

// Stats returns a snapshot of per-tier skip counts.
func (d *Detector) Stats() models.DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Detector) count(fn func(*models.DetectorStats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}
