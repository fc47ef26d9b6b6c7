package crawl

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/site2rag/internal/common"
)

func TestWriteMarkdownStaysInsideOutputDir(t *testing.T) {
	c, _ := testCrawler(t, nil)
	outDir := filepath.Clean(c.config.Crawl.OutputDir)

	// Percent-encoded dot segments decode to ".." and must not climb out
	// of the output tree
	path, err := c.writeMarkdown("https://example.com/a/%2e%2e/%2e%2e/%2e%2e/tmp/evil", "# content\n")
	require.NoError(t, err)

	rel, err := filepath.Rel(outDir, path)
	require.NoError(t, err)
	assert.False(t, rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)),
		"%s written outside %s", path, outDir)
	assert.Equal(t, filepath.Join(outDir, "a", "tmp", "evil.md"), path)
	assert.FileExists(t, path)
}

func TestWriteMarkdownFlatLayout(t *testing.T) {
	c, _ := testCrawler(t, func(cfg *common.Config) { cfg.Crawl.FlatLayout = true })

	path, err := c.writeMarkdown("https://example.com/docs/guide/intro.html", "# intro\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Clean(c.config.Crawl.OutputDir), "docs_guide_intro.md"), path)
}
