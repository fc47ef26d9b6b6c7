package crawl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/extract"
	"github.com/ternarybob/site2rag/internal/urlutil"
)

// writeMarkdown writes the page's Markdown file under the output directory,
// hierarchical by URL path or flat with underscores per configuration.
func (c *Crawler) writeMarkdown(pageURL, content string) (string, error) {
	var name string
	if c.config.Crawl.FlatLayout {
		name = urlutil.FlatFilename(pageURL)
	} else {
		name = urlutil.SafeFilename(pageURL)
	}

	outDir := filepath.Clean(c.config.Crawl.OutputDir)
	path := filepath.Join(outDir, name+".md")
	if rel, rerr := filepath.Rel(outDir, path); rerr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path for %s escapes %s", pageURL, outDir)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// writeDebugReport mirrors the content path under .site2rag/debug with a
// Markdown report of the extraction decision trail.
func (c *Crawler) writeDebugReport(pageURL string, result *extract.Result) {
	dir := filepath.Join(c.config.Crawl.OutputDir, common.StateDirName, "debug")
	path := filepath.Join(dir, urlutil.SafeFilename(pageURL)+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to create debug dir")
		return
	}

	var b []byte
	b = append(b, fmt.Sprintf("# Extraction report\n\nURL: %s\nStrategy: %s\nScore: %.1f\n\n", pageURL, result.Strategy, result.Score)...)
	b = append(b, "| Selector | Decision | Reason |\n|---|---|---|\n"...)
	for _, r := range result.Removals {
		b = append(b, fmt.Sprintf("| `%s` | %s | %s |\n", r.Selector, r.Decision, r.Reason)...)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Failed to write debug report")
	}
}
