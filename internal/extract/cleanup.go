package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var bylineRegexp = regexp.MustCompile(`\b[Bb]y\s+[A-Z][a-z]+`)

// cleanup runs the single-pass cleanup over the chosen subtree: dead
// elements, nested navigation/boilerplate, and duplicate blocks. Every
// removal lands in the trace.
func (e *Extractor) cleanup(result *Result) {
	content := result.Content
	if content == nil || content.Length() == 0 {
		return
	}

	removed := make(map[*html.Node]bool)
	gone := func(sel *goquery.Selection) bool {
		for _, node := range sel.Nodes {
			for n := node; n != nil; n = n.Parent {
				if removed[n] {
					return true
				}
			}
		}
		return false
	}
	remove := func(sel *goquery.Selection, reason string) {
		result.Removals = append(result.Removals, Removal{
			Selector: selectorPath(sel),
			Decision: "removed",
			Reason:   reason,
		})
		for _, node := range sel.Nodes {
			removed[node] = true
		}
		sel.Remove()
	}
	keep := func(sel *goquery.Selection, reason string) {
		result.Removals = append(result.Removals, Removal{
			Selector: selectorPath(sel),
			Decision: "kept",
			Reason:   reason,
		})
	}

	// Dead weight
	content.Find("script, style, noscript, iframe").Each(func(_ int, sel *goquery.Selection) {
		if !gone(sel) {
			remove(sel, "non-content element")
		}
	})
	content.Find("svg").Each(func(_ int, sel *goquery.Selection) {
		if !gone(sel) && textLen(sel) == 0 {
			remove(sel, "svg without text")
		}
	})

	// Navigation and boilerplate, with the author/byline exception
	content.Find("*").Each(func(_ int, sel *goquery.Selection) {
		if gone(sel) {
			return
		}
		if !isNavigation(sel) {
			return
		}
		if isAuthorContent(sel) {
			keep(sel, "author or byline content")
			return
		}
		remove(sel, "navigation or boilerplate")
	})

	// Empty elements
	content.Find("*").Each(func(_ int, sel *goquery.Selection) {
		if gone(sel) {
			return
		}
		tag := goquery.NodeName(sel)
		if tag == "br" || tag == "hr" || tag == "img" {
			return
		}
		if textLen(sel) == 0 && sel.Find("img[src]").Length() == 0 {
			remove(sel, "empty element")
		}
	})

	// Duplicate blocks: later occurrences of identical normalized text
	seen := make(map[string]*html.Node)
	content.Find("nav, header, footer, aside, div, ul, ol").Each(func(_ int, sel *goquery.Selection) {
		if gone(sel) {
			return
		}
		norm := normalizeBlockText(sel.Text())
		if len(norm) < dedupMinChars {
			return
		}
		if first, ok := seen[norm]; ok {
			// A parent and its only child share text; never dedup across
			// an ancestor chain.
			if isAncestor(first, sel.Nodes[0]) {
				return
			}
			remove(sel, "duplicate block")
			return
		}
		seen[norm] = sel.Nodes[0]
	})
}

// isNavigation classifies an element as navigation-or-boilerplate by tag,
// ARIA role, class/id naming, or link-text density.
func isNavigation(sel *goquery.Selection) bool {
	switch goquery.NodeName(sel) {
	case "nav", "header", "footer", "aside":
		return true
	}

	if role, ok := sel.Attr("role"); ok {
		switch strings.ToLower(role) {
		case "navigation", "banner", "contentinfo":
			return true
		}
	}

	name := classAndID(sel)
	for _, marker := range navNameMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}

	if textLen(sel) > navLinkMinChars && linkTextRatio(sel) > navLinkRatio {
		return true
	}

	return false
}

// isAuthorContent reports whether the element carries author or byline
// information, which is always preserved.
func isAuthorContent(sel *goquery.Selection) bool {
	name := classAndID(sel)
	for _, marker := range []string{"author", "byline", "bio"} {
		if strings.Contains(name, marker) {
			return true
		}
	}

	text := sel.Text()
	if len(text) > 500 {
		text = text[:500]
	}
	if strings.Contains(strings.ToLower(text), "about the author") {
		return true
	}
	return bylineRegexp.MatchString(text)
}

func normalizeBlockText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func isAncestor(candidate, node *html.Node) bool {
	for n := node.Parent; n != nil; n = n.Parent {
		if n == candidate {
			return true
		}
	}
	return false
}

// selectorPath builds a short CSS-like path for the removal trace,
// e.g. "div#main > nav.top-nav".
func selectorPath(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}

	var parts []string
	current := sel
	for depth := 0; depth < 4 && current.Length() > 0; depth++ {
		tag := goquery.NodeName(current)
		if tag == "" || tag == "#document" || tag == "html" {
			break
		}
		part := tag
		if id, ok := current.Attr("id"); ok && id != "" {
			part += "#" + id
		} else if class, ok := current.Attr("class"); ok && class != "" {
			part += "." + strings.Fields(class)[0]
		}
		parts = append([]string{part}, parts...)
		if tag == "body" {
			break
		}
		current = current.Parent()
	}

	return strings.Join(parts, " > ")
}
