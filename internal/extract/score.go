package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scoring weights for the fallback tree walk. Positive signals reward body
// text and block structure; negative signals punish link farms, navigation
// naming and depth.
const (
	weightParagraph   = 2.0
	weightHeading     = 3.0
	weightRichBlock   = 2.0 // code, blockquote, table
	weightContentName = 5.0
	weightLinkRatio   = -10.0
	weightNavSignal   = -2.0
	weightDepth       = -0.5
	textScoreDivisor  = 100.0
	textScoreCap      = 50.0
)

var navNameMarkers = []string{
	"nav", "menu", "sidebar", "widget", "foot", "share",
	"social", "meta", "breadcrumb", "pagination",
}

// findByScore walks the subtree computing a content score per element and
// returns the highest-scoring element above the acceptance thresholds.
func (e *Extractor) findByScore(root *goquery.Selection) (*goquery.Selection, float64) {
	var best *goquery.Selection
	bestScore := 0.0

	var walk func(sel *goquery.Selection, depth int)
	walk = func(sel *goquery.Selection, depth int) {
		sel.Children().Each(func(_ int, child *goquery.Selection) {
			tag := goquery.NodeName(child)
			switch tag {
			case "script", "style", "noscript", "nav", "header", "footer", "aside":
				return
			}
			if isFrameworkWrapper(child) {
				walk(child, depth+1)
				return
			}

			score := scoreElement(child, depth)
			if score > bestScore && score > minScore && textLen(child) > minScoredChars {
				best = child
				bestScore = score
			}
			walk(child, depth+1)
		})
	}
	walk(root, 0)

	return best, bestScore
}

func scoreElement(sel *goquery.Selection, depth int) float64 {
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return 0
	}

	score := float64(len(text)) / textScoreDivisor
	if score > textScoreCap {
		score = textScoreCap
	}

	score += weightParagraph * float64(sel.Find("p").Length())
	score += weightHeading * float64(sel.Find("h1, h2, h3, h4, h5, h6").Length())
	score += weightRichBlock * float64(sel.Find("pre, code, blockquote, table").Length())

	if isContentNamed(sel) {
		score += weightContentName
	}

	score += weightLinkRatio * linkTextRatio(sel)
	score += weightNavSignal * float64(navSignalCount(sel))
	score += weightDepth * float64(depth)

	return score
}

// linkTextRatio is the fraction of the element's text living inside anchors.
func linkTextRatio(sel *goquery.Selection) float64 {
	total := len(strings.TrimSpace(sel.Text()))
	if total == 0 {
		return 0
	}
	linked := 0
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		linked += len(strings.TrimSpace(a.Text()))
	})
	return float64(linked) / float64(total)
}

func navSignalCount(sel *goquery.Selection) int {
	name := classAndID(sel)
	count := 0
	for _, marker := range navNameMarkers {
		if strings.Contains(name, marker) {
			count++
		}
	}
	return count
}

// isFrameworkWrapper reports whether the element is a known SPA mount point
// whose own score should not compete with its content.
func isFrameworkWrapper(sel *goquery.Selection) bool {
	id, _ := sel.Attr("id")
	if id != "" {
		for _, wrapper := range spaWrappers {
			if strings.TrimPrefix(wrapper, "#") == id {
				return true
			}
		}
	}
	return goquery.NodeName(sel) == "app-root"
}
