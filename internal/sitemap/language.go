package sitemap

import (
	"net/url"
	"regexp"
	"strings"
)

// languageSegment matches a two-letter language code (optionally with a
// region) as its own path segment, e.g. /fr/ or /pt-br/.
var languageSegment = regexp.MustCompile(`(?i)/([a-z]{2})(?:-[a-z]{2})?/`)

// knownLanguages limits the URL-segment heuristic to codes that actually
// appear as site locales, so segments like /go/ or /id/1234 don't match
// spuriously. "id" (Indonesian) is deliberately absent.
var knownLanguages = map[string]bool{
	"en": true, "de": true, "fr": true, "es": true, "it": true,
	"pt": true, "nl": true, "ru": true, "ja": true, "zh": true,
	"ko": true, "ar": true, "fa": true, "tr": true, "pl": true,
	"sv": true, "da": true, "no": true, "fi": true, "cs": true,
	"el": true, "he": true, "hi": true, "th": true, "vi": true,
	"uk": true, "ro": true, "hu": true,
}

// detectLanguage resolves a sitemap URL's language from, in order: an
// hreflang self-reference among the entry's xhtml links, a language path
// segment, or the "en" canonical fallback.
func detectLanguage(loc string, links []xhtmlLink) string {
	for _, link := range links {
		if !strings.EqualFold(link.Rel, "alternate") {
			continue
		}
		if strings.TrimSpace(link.Href) == loc && link.Hreflang != "" {
			return normalizeLang(link.Hreflang)
		}
	}

	if u, err := url.Parse(loc); err == nil {
		if match := languageSegment.FindStringSubmatch(u.Path + "/"); match != nil {
			code := strings.ToLower(match[1])
			if knownLanguages[code] {
				return code
			}
		}
	}

	return "en"
}

func normalizeLang(hreflang string) string {
	lang := strings.ToLower(strings.TrimSpace(hreflang))
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "x" {
		return "en"
	}
	return lang
}
