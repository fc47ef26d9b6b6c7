// Package progress renders per-page crawl activity and phase summaries to
// the console. Structured logs carry the same facts; this is the operator
// view.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/ternarybob/site2rag/internal/crawl"
	"github.com/ternarybob/site2rag/internal/models"
)

// Reporter tallies per-URL outcomes and prints phase summaries. Safe for
// concurrent use by crawl workers.
type Reporter struct {
	out   io.Writer
	quiet bool

	mu     sync.Mutex
	counts map[string]int
}

// NewReporter writes to out. Quiet suppresses the per-page stream but keeps
// the summaries.
func NewReporter(out io.Writer, quiet bool) *Reporter {
	return &Reporter{
		out:    out,
		quiet:  quiet,
		counts: make(map[string]int),
	}
}

// Page records one URL outcome. Wired as the crawler's OnPage callback.
func (r *Reporter) Page(url, outcome string) {
	r.mu.Lock()
	r.counts[outcome]++
	r.mu.Unlock()

	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "  [%s] %s\n", outcome, url)
}

// CrawlSummary prints the crawl phase totals and the change-detector tiers.
func (r *Reporter) CrawlSummary(res *crawl.Result) {
	s := res.Stats
	fmt.Fprintf(r.out, "\ncrawl: %d pages visited, %d written, %d unchanged, %d binaries, %d errors\n",
		s.Crawled, s.Written, s.Fresh, s.Binaries, s.Errors)

	d := res.Detector
	skipped := d.SkippedByAge + d.SkippedByETag + d.SkippedByLastModified + d.SkippedByHash
	if skipped > 0 {
		fmt.Fprintf(r.out, "change detection: %d age, %d etag, %d last-modified, %d hash\n",
			d.SkippedByAge, d.SkippedByETag, d.SkippedByLastModified, d.SkippedByHash)
	}
}

// EnrichSummary prints the enrichment phase totals including token spend.
func (r *Reporter) EnrichSummary(s *models.EnrichStats) {
	fmt.Fprintf(r.out, "enrich: %d of %d documents, %d paragraphs (%d annotated), %d failed\n",
		s.Enriched, s.Documents, s.Paragraphs, s.Annotated, s.Failed)
	if s.Tokens > 0 {
		line := fmt.Sprintf("tokens: ~%d", s.Tokens)
		if s.Cost > 0 {
			line += fmt.Sprintf(" (est. $%.4f)", s.Cost)
		}
		fmt.Fprintln(r.out, line)
	}
}

// Count returns the tally for one outcome label.
func (r *Reporter) Count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[outcome]
}
