// Package extract selects the primary article content from a fetched HTML
// document: it peels framework wrappers, prefers semantic containers, falls
// back to a scored tree walk, then cleans navigation and boilerplate out of
// the chosen subtree while tracing every removal.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// Removal records one cleanup decision for the debug trace.
type Removal struct {
	Selector string
	Decision string // "removed" or "kept"
	Reason   string
}

// Result carries the chosen content subtree and the removal trace.
type Result struct {
	Content  *goquery.Selection
	Strategy string // Which fallback produced the content
	Score    float64
	Removals []Removal
}

// spaWrappers are well-known single-page-app mount points peeled before
// content selection.
var spaWrappers = []string{"#__nuxt", "#__next", "#root", "#app", "app-root", "#gatsby", "#___gatsby"}

// fallbackSelectors are common article containers tried when neither the
// semantic walk nor scoring finds a winner.
var fallbackSelectors = []string{
	"article", "main", "[role=main]",
	".content", "#content", ".main-content",
	".post-content", ".entry-content", ".article-content",
}

const (
	peelMaxDepth     = 10
	minContentChars  = 200
	minScoredChars   = 100
	minScore         = 5.0
	dedupMinChars    = 50
	navLinkRatio     = 0.5
	navLinkMinChars  = 20
)

// Extractor finds and cleans main content.
type Extractor struct {
	logger arbor.ILogger
}

// New creates an extractor.
func New(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract returns the main content element of the document with navigation
// and boilerplate removed. It never returns nil content: the last resort is
// the cleaned <body>.
func (e *Extractor) Extract(doc *goquery.Document, pageURL string) *Result {
	result := &Result{}

	root := e.peelWrapper(doc)

	// 1. Semantic walk from the (possibly peeled) root
	if content := e.findSemantic(root); content != nil {
		result.Content = content
		result.Strategy = "semantic"
	}

	// 2. Score-based walk
	if result.Content == nil {
		if content, score := e.findByScore(root); content != nil {
			result.Content = content
			result.Strategy = "scored"
			result.Score = score
		}
	}

	// 3. Known selectors
	if result.Content == nil {
		for _, sel := range fallbackSelectors {
			candidate := doc.Find(sel).First()
			if candidate.Length() > 0 && textLen(candidate) > 0 {
				result.Content = candidate
				result.Strategy = "selector:" + sel
				break
			}
		}
	}

	// 4. Paragraph density
	if result.Content == nil {
		if content := e.findByParagraphDensity(doc); content != nil {
			result.Content = content
			result.Strategy = "paragraph-density"
		}
	}

	// 5. Last resort
	if result.Content == nil {
		result.Content = doc.Find("body").First()
		result.Strategy = "body"
	}

	e.cleanup(result)

	e.logger.Debug().
		Str("url", pageURL).
		Str("strategy", result.Strategy).
		Int("removals", len(result.Removals)).
		Msg("Content extracted")

	return result
}

// peelWrapper returns the deepest useful starting point: the body, or the
// single child chain inside a known SPA mount node.
func (e *Extractor) peelWrapper(doc *goquery.Document) *goquery.Selection {
	body := doc.Find("body").First()

	for _, wrapper := range spaWrappers {
		mount := body.Find(wrapper).First()
		if mount.Length() == 0 {
			continue
		}
		// Descend through single-child wrapper divs, bounded
		current := mount
		for depth := 0; depth < peelMaxDepth; depth++ {
			children := current.Children()
			if children.Length() != 1 {
				break
			}
			child := children.First()
			if !isWrapperTag(goquery.NodeName(child)) {
				break
			}
			current = child
		}
		return current
	}

	return body
}

// findSemantic walks down from root up to peelMaxDepth levels looking for a
// semantic main/article or a content-named container with real text, skipping
// anything classified as navigation.
func (e *Extractor) findSemantic(root *goquery.Selection) *goquery.Selection {
	if root == nil || root.Length() == 0 {
		return nil
	}

	var found *goquery.Selection
	var walk func(sel *goquery.Selection, depth int)
	walk = func(sel *goquery.Selection, depth int) {
		if found != nil || depth > peelMaxDepth {
			return
		}
		sel.Children().Each(func(_ int, child *goquery.Selection) {
			if found != nil {
				return
			}
			tag := goquery.NodeName(child)
			switch tag {
			case "main", "article":
				found = child
				return
			case "nav", "header", "footer", "aside", "script", "style":
				return
			}
			if isContentNamed(child) && !isNavigation(child) {
				if textLen(child) > minContentChars || hasBlockChildren(child) {
					found = child
					return
				}
			}
			walk(child, depth+1)
		})
	}
	walk(root, 0)

	return found
}

// findByParagraphDensity picks the div/section with the most <p> children
// and at least minContentChars of text.
func (e *Extractor) findByParagraphDensity(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestCount := 0

	doc.Find("div, section").Each(func(_ int, sel *goquery.Selection) {
		count := sel.ChildrenFiltered("p").Length()
		if count > bestCount && textLen(sel) >= minContentChars {
			best = sel
			bestCount = count
		}
	})

	if bestCount == 0 {
		return nil
	}
	return best
}

func isWrapperTag(tag string) bool {
	return tag == "div" || tag == "section" || tag == "span"
}

func isContentNamed(sel *goquery.Selection) bool {
	name := classAndID(sel)
	for _, marker := range []string{"content", "article", "post", "main", "body", "page"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func hasBlockChildren(sel *goquery.Selection) bool {
	return sel.ChildrenFiltered("p, h1, h2, h3, h4, h5, h6, ul, ol, table, pre, blockquote").Length() > 0
}

func classAndID(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	return strings.ToLower(class + " " + id)
}

func textLen(sel *goquery.Selection) int {
	return len(strings.TrimSpace(sel.Text()))
}
