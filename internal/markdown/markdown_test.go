package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/site2rag/internal/models"
)

func convert(t *testing.T, base, html string) string {
	t.Helper()
	c, err := NewConverter(base)
	require.NoError(t, err)
	out, err := c.ConvertString(html)
	require.NoError(t, err)
	return out
}

func TestConvertLinkResolution(t *testing.T) {
	out := convert(t, "https://site/", `<p>Hello <a href="/x">world</a>.</p>`)
	assert.Equal(t, "Hello [world](https://site/x).\n", out)
}

func TestConvertLinkTextWhitespaceCollapsed(t *testing.T) {
	out := convert(t, "https://site/", "<p><a href=\"/x\">two\n   words</a></p>")
	assert.Contains(t, out, "[two words](https://site/x)")
}

func TestConvertPDFLinkStaysRelative(t *testing.T) {
	out := convert(t, "https://site/docs/", `<p><a href="files/report.pdf">Report</a></p>`)
	assert.Contains(t, out, "[Report](files/report.pdf)")
}

func TestConvertPercentDecoding(t *testing.T) {
	out := convert(t, "https://site/", `<p><a href="/caf%C3%A9">menu</a></p>`)
	assert.Contains(t, out, "(https://site/café)")

	// Encoded spaces stay encoded
	out = convert(t, "https://site/", `<p><a href="/a%20b">x</a></p>`)
	assert.Contains(t, out, "(https://site/a%20b)")
}

func TestConvertHeadingsAndFences(t *testing.T) {
	out := convert(t, "https://site/", `<h2>Usage</h2><pre><code class="language-go">fmt.Println("hi")</code></pre>`)
	assert.Contains(t, out, "## Usage")
	assert.Contains(t, out, "```go")
}

func TestConvertDropsScripts(t *testing.T) {
	out := convert(t, "https://site/", `<p>keep</p><script>alert(1)</script><style>p{}</style>`)
	assert.Contains(t, out, "keep")
	assert.NotContains(t, out, "alert")
}

func TestConvertSelection(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><main><p>Body text.</p></main></body></html>`))
	require.NoError(t, err)

	c, err := NewConverter("https://site/")
	require.NoError(t, err)
	out, err := c.Convert(doc.Find("main"))
	require.NoError(t, err)
	assert.Equal(t, "Body text.\n", out)
}

func TestFrontMatterQuotingAndOrder(t *testing.T) {
	meta := &models.DocumentMeta{
		Title:       "Go: the good parts",
		Description: "plain text",
		Keywords:    []string{"go", "c: language"},
		Author:      "Jane Doe",
	}
	crawled := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	fm, err := FrontMatter(meta, "https://example.com/p", crawled)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(fm, "---\n"))
	assert.True(t, strings.HasSuffix(fm, "---\n"))
	assert.Contains(t, fm, `title: "Go: the good parts"`)
	assert.Contains(t, fm, "description: plain text")
	assert.Contains(t, fm, `- "c: language"`)
	assert.Contains(t, fm, "crawled_at: \"2025-03-01T12:00:00Z\"")

	// The block must round-trip as YAML
	var parsed map[string]any
	body := strings.TrimSuffix(strings.TrimPrefix(fm, "---\n"), "---\n")
	require.NoError(t, yaml.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, "Go: the good parts", parsed["title"])
	assert.Equal(t, "Jane Doe", parsed["author"])
}

func TestFrontMatterDropsEmptyFields(t *testing.T) {
	fm, err := FrontMatter(&models.DocumentMeta{Title: "T"}, "https://e.com/", time.Now())
	require.NoError(t, err)
	assert.NotContains(t, fm, "publisher")
	assert.NotContains(t, fm, "keywords")
}

func TestFrontMatterAuthorDetail(t *testing.T) {
	meta := &models.DocumentMeta{
		Author:       "Jane Doe",
		AuthorDetail: &models.AuthorDetail{JobTitle: "Engineer", Organization: "Example Corp"},
	}
	fm, err := FrontMatter(meta, "https://e.com/", time.Now())
	require.NoError(t, err)
	assert.Contains(t, fm, "authorJobTitle: Engineer")
	assert.Contains(t, fm, "authorOrganization: Example Corp")
	assert.NotContains(t, fm, "authorImage")
}

func TestDocumentAssembly(t *testing.T) {
	doc := Document("---\ntitle: T\n---\n", "Body.\n\n")
	assert.Equal(t, "---\ntitle: T\n---\n\nBody.\n", doc)
}
