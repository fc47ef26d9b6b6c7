// Package markdown renders extracted HTML content as Markdown files with
// YAML front-matter.
package markdown

import (
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

var binaryLinkExtensions = []string{".pdf", ".docx"}

// Converter turns an HTML subtree into Markdown. Headings are ATX, code
// blocks fenced with the language carried over from class="language-X",
// and tables GFM-style.
type Converter struct {
	base *url.URL
	conv *md.Converter
}

// NewConverter creates a converter resolving relative links against baseURL.
func NewConverter(baseURL string) (*Converter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	conv := md.NewConverter(base.Scheme+"://"+base.Host, true, &md.Options{
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
		Fence:          "```",
	})
	conv.Use(plugin.Table())

	c := &Converter{base: base, conv: conv}

	conv.AddRules(
		md.Rule{
			Filter: []string{"script", "style", "noscript", "iframe"},
			Replacement: func(string, *goquery.Selection, *md.Options) *string {
				return md.String("")
			},
		},
		md.Rule{
			Filter:      []string{"a"},
			Replacement: c.linkRule,
		},
	)

	return c, nil
}

// Convert renders the selection's outer HTML as Markdown.
func (c *Converter) Convert(sel *goquery.Selection) (string, error) {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}
	return c.ConvertString(html)
}

// ConvertString renders an HTML string as Markdown.
func (c *Converter) ConvertString(html string) (string, error) {
	out, err := c.conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out) + "\n", nil
}

// linkRule renders anchors with collapsed link text and resolved targets.
// Relative links to .pdf/.docx keep their relative path so saved documents
// stay reachable from the output tree.
func (c *Converter) linkRule(content string, sel *goquery.Selection, _ *md.Options) *string {
	text := strings.Join(strings.Fields(content), " ")

	href := strings.TrimSpace(sel.AttrOr("href", ""))
	if href == "" {
		return md.String(text)
	}
	if text == "" {
		text = href
	}

	return md.String("[" + text + "](" + c.resolveHref(href) + ")")
}

func (c *Converter) resolveHref(href string) string {
	if decoded := decodeTarget(href); decoded != "" {
		href = decoded
	}

	if isBinaryTarget(href) && !strings.Contains(href, "://") {
		return href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}

// decodeTarget percent-decodes a URL when the decoded form is still a clean
// link target. Anything that decodes into spaces or parentheses stays encoded.
func decodeTarget(href string) string {
	decoded, err := url.PathUnescape(href)
	if err != nil || decoded == href {
		return ""
	}
	if strings.ContainsAny(decoded, " ()") {
		return ""
	}
	return decoded
}

func isBinaryTarget(href string) bool {
	lower := strings.ToLower(href)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range binaryLinkExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
