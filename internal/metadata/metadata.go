// Package metadata fuses page metadata from JSON-LD, meta tags, Open Graph,
// Dublin Core and byline text into a single DocumentMeta. Per field the first
// non-empty source in precedence order wins.
package metadata

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/site2rag/internal/models"
)

var bylineRegexp = regexp.MustCompile(`[Bb]y\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)

// Extract fuses metadata for the document. Empty strings and empty arrays
// never appear in the result.
func Extract(doc *goquery.Document) *models.DocumentMeta {
	ld := parseJSONLD(doc)
	meta := &models.DocumentMeta{}

	meta.Title = firstNonEmpty(
		ld.str("headline"),
		ld.str("name"),
		strings.TrimSpace(doc.Find("title").First().Text()),
		metaProperty(doc, "og:title"),
	)

	meta.Author = firstNonEmpty(
		ld.author(),
		metaName(doc, "author"),
		metaProperty(doc, "article:author"),
		metaName(doc, "DC.creator"),
		linkTitle(doc, "author"),
		bylineAuthor(doc),
	)

	meta.Description = firstNonEmpty(
		ld.str("description"),
		metaName(doc, "description"),
		metaProperty(doc, "og:description"),
		metaName(doc, "DC.description"),
	)

	meta.DatePublished = firstNonEmpty(
		ld.str("datePublished"),
		metaProperty(doc, "article:published_time"),
		metaName(doc, "DC.date"),
	)
	meta.DateModified = firstNonEmpty(
		ld.str("dateModified"),
		metaProperty(doc, "article:modified_time"),
	)

	meta.Publisher = firstNonEmpty(
		ld.publisherName(),
		metaProperty(doc, "og:site_name"),
		metaName(doc, "DC.publisher"),
	)
	meta.PublisherLogo = ld.publisherLogo()

	meta.Image = firstNonEmpty(
		ld.image(),
		metaProperty(doc, "og:image"),
		metaName(doc, "twitter:image"),
	)

	meta.Section = firstNonEmpty(
		ld.str("articleSection"),
		metaProperty(doc, "article:section"),
	)

	meta.License = firstNonEmpty(
		ld.str("license"),
		linkHref(doc, "license"),
	)

	meta.Canonical = linkHref(doc, "canonical")
	meta.Language = firstNonEmpty(
		doc.Find("html").AttrOr("lang", ""),
		metaProperty(doc, "og:locale"),
	)
	meta.AudioDuration = ld.audioDuration()

	meta.Keywords = mergeKeywords(doc, ld)

	if meta.Author != "" {
		meta.AuthorDetail = ld.personDetail(meta.Author)
	}

	return meta
}

// mergeKeywords combines meta keywords, JSON-LD keywords, article:tag and
// DC.subject into a deduped ordered set.
func mergeKeywords(doc *goquery.Document, ld jsonLD) []string {
	var raw []string

	if kw := metaName(doc, "keywords"); kw != "" {
		raw = append(raw, strings.Split(kw, ",")...)
	}
	raw = append(raw, ld.keywords()...)
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		raw = append(raw, sel.AttrOr("content", ""))
	})
	doc.Find(`meta[name="DC.subject"]`).Each(func(_ int, sel *goquery.Selection) {
		raw = append(raw, sel.AttrOr("content", ""))
	})

	seen := make(map[string]bool)
	var out []string
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

// bylineAuthor scans the first 500 chars of body text for a "by <Name>" line.
func bylineAuthor(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find("body").Text())
	if len(text) > 500 {
		text = text[:500]
	}
	match := bylineRegexp.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

func metaName(doc *goquery.Document, name string) string {
	return strings.TrimSpace(doc.Find(`meta[name="` + name + `"]`).First().AttrOr("content", ""))
}

func metaProperty(doc *goquery.Document, property string) string {
	return strings.TrimSpace(doc.Find(`meta[property="` + property + `"]`).First().AttrOr("content", ""))
}

func linkHref(doc *goquery.Document, rel string) string {
	return strings.TrimSpace(doc.Find(`link[rel="` + rel + `"]`).First().AttrOr("href", ""))
}

func linkTitle(doc *goquery.Document, rel string) string {
	return strings.TrimSpace(doc.Find(`link[rel="` + rel + `"]`).First().AttrOr("title", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// jsonLD is the flattened set of JSON-LD entities found in the document.
type jsonLD struct {
	entities []map[string]any
}

// parseJSONLD collects every JSON-LD entity, flattening @graph arrays and
// top-level arrays. Broken script blocks are skipped.
func parseJSONLD(doc *goquery.Document) jsonLD {
	var ld jsonLD
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(sel.Text()), &parsed); err != nil {
			return
		}
		ld.entities = append(ld.entities, flattenEntities(parsed)...)
	})
	return ld
}

func flattenEntities(value any) []map[string]any {
	switch v := value.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			var out []map[string]any
			for _, item := range graph {
				out = append(out, flattenEntities(item)...)
			}
			return out
		}
		return []map[string]any{v}
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenEntities(item)...)
		}
		return out
	}
	return nil
}

// str returns the first entity's string value for the key.
func (ld jsonLD) str(key string) string {
	for _, entity := range ld.entities {
		if s, ok := entity[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// author resolves the JSON-LD author field, which may be a string, a Person
// object, or an array of either.
func (ld jsonLD) author() string {
	for _, entity := range ld.entities {
		if name := entityName(entity["author"]); name != "" {
			return name
		}
	}
	return ""
}

func (ld jsonLD) publisherName() string {
	for _, entity := range ld.entities {
		if name := entityName(entity["publisher"]); name != "" {
			return name
		}
	}
	return ""
}

func (ld jsonLD) publisherLogo() string {
	for _, entity := range ld.entities {
		pub, ok := entity["publisher"].(map[string]any)
		if !ok {
			continue
		}
		if logo := imageURL(pub["logo"]); logo != "" {
			return logo
		}
	}
	return ""
}

func (ld jsonLD) image() string {
	for _, entity := range ld.entities {
		if img := imageURL(entity["image"]); img != "" {
			return img
		}
	}
	return ""
}

func (ld jsonLD) keywords() []string {
	for _, entity := range ld.entities {
		switch kw := entity["keywords"].(type) {
		case string:
			return strings.Split(kw, ",")
		case []any:
			var out []string
			for _, item := range kw {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

func (ld jsonLD) audioDuration() string {
	for _, entity := range ld.entities {
		audio, ok := entity["audio"].(map[string]any)
		if !ok {
			continue
		}
		if d, ok := audio["duration"].(string); ok {
			return strings.TrimSpace(d)
		}
	}
	return ld.str("duration")
}

// personDetail finds a Person entity whose name matches the resolved author
// and attaches its enrichment attributes.
func (ld jsonLD) personDetail(author string) *models.AuthorDetail {
	for _, entity := range ld.entities {
		candidates := []any{entity}
		if a, ok := entity["author"]; ok {
			candidates = append(candidates, a)
		}
		for _, candidate := range candidates {
			person := asPerson(candidate, author)
			if person == nil {
				continue
			}
			detail := &models.AuthorDetail{
				Description:  stringField(person, "description"),
				JobTitle:     stringField(person, "jobTitle"),
				Image:        imageURL(person["image"]),
				URL:          stringField(person, "url"),
				Organization: entityName(person["worksFor"]),
			}
			if *detail == (models.AuthorDetail{}) {
				continue
			}
			return detail
		}
	}
	return nil
}

func asPerson(value any, name string) map[string]any {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	if t, ok := m["@type"].(string); !ok || !strings.EqualFold(t, "Person") {
		return nil
	}
	if !strings.EqualFold(stringField(m, "name"), name) {
		return nil
	}
	return m
}

// entityName handles string, object-with-name, and array forms.
func entityName(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v, "name")
	case []any:
		for _, item := range v {
			if name := entityName(item); name != "" {
				return name
			}
		}
	}
	return ""
}

// imageURL handles string, ImageObject, and array image forms.
func imageURL(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v, "url")
	case []any:
		for _, item := range v {
			if u := imageURL(item); u != "" {
				return u
			}
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
