package enrich

import (
	"regexp"
	"strings"
)

// annotationSpan matches a [[...]] annotation together with its leading
// whitespace, so stripping an inserted annotation restores the original
// token spacing exactly.
var annotationSpan = regexp.MustCompile(`\s*\[\[[^\[\]]*\]\]`)

// StripAnnotations removes every [[...]] span and its leading whitespace.
func StripAnnotations(s string) string {
	return annotationSpan.ReplaceAllString(s, "")
}

// accentFold maps accented vowels and non-straight apostrophes onto their
// plain forms. Applied before terminology unification.
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ā", "a",
	"é", "e", "è", "e", "ê", "e", "ē", "e",
	"í", "i", "ì", "i", "î", "i", "ī", "i",
	"ó", "o", "ò", "o", "ô", "o", "ō", "o",
	"ú", "u", "ù", "u", "û", "u", "ū", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u",
	"’", "'", "‘", "'", "`", "'", "ʻ", "'", "ʼ", "'",
)

// terminology unifies transliteration variants of Bahá'í-family terms so an
// annotation pass that normalizes spelling is not mistaken for a rewrite.
var terminology = strings.NewReplacer(
	"baha'u'llah", "bahaullah",
	"bahau'llah", "bahaullah",
	"'abdu'l-baha", "abdulbaha",
	"abdu'l-baha", "abdulbaha",
	"baha'i", "bahai",
)

// NormalizeForComparison produces the canonical form both sides of the
// preservation check are reduced to: whitespace-collapsed, lowercased,
// accent-folded, terminology-unified.
func NormalizeForComparison(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = accentFold.Replace(s)
	s = strings.ToLower(s)
	s = terminology.Replace(s)
	return s
}

// Preserved reports whether the enhanced paragraph is the original plus
// annotations and nothing else. This is the enrichment contract's
// mechanical enforcement; invalid enhancements are discarded.
func Preserved(original, enhanced string) bool {
	return NormalizeForComparison(StripAnnotations(enhanced)) == NormalizeForComparison(original)
}
