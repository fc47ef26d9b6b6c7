package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripAnnotations(t *testing.T) {
	assert.Equal(t, "He visited the capital.",
		StripAnnotations("He [[John Smith]] visited the capital [[Paris]]."))
	assert.Equal(t, "No annotations here.", StripAnnotations("No annotations here."))
	assert.Equal(t, "Edge case.", StripAnnotations("[[leading]] Edge case.[[trailing]]"))
}

func TestPreservedAcceptsAnnotationOnlyChanges(t *testing.T) {
	original := "He visited the capital."

	assert.True(t, Preserved(original, "He [[John Smith]] visited the capital [[Paris]]."))
	assert.True(t, Preserved(original, original))
	assert.False(t, Preserved(original, "He visited the city."))
	assert.False(t, Preserved(original, "He visited the capital"))
}

func TestPreservedNormalizesWhitespaceAndCase(t *testing.T) {
	assert.True(t, Preserved("The  quick   fox.", "the quick [[red]] fox."))
	assert.True(t, Preserved("Wrapped\nline here.", "Wrapped line [[in prose]] here."))
}

func TestPreservedUnifiesTerminology(t *testing.T) {
	assert.True(t, Preserved("The Bahá'í community gathered.", "The Baha'i [[religious]] community gathered."))
	assert.True(t, Preserved("Bahá'u'lláh wrote there.", "Baha'u'llah [[the founder]] wrote there."))
	assert.True(t, Preserved("'Abdu'l-Bahá travelled west.", "Abdu'l-Baha [[his son]] travelled west."))
	assert.True(t, Preserved("It’s café season.", "It's cafe [[in spring]] season."))
}

func TestAnnotationsOutsideMarkup(t *testing.T) {
	assert.True(t, AnnotationsOutsideMarkup("Plain prose [[with context]] is fine."))
	assert.True(t, AnnotationsOutsideMarkup("A [link](https://example.com) and [[an annotation]] after."))
	assert.True(t, AnnotationsOutsideMarkup("No annotation at all."))

	assert.False(t, AnnotationsOutsideMarkup("A [bad [[inside]] text](https://example.com) link."))
	assert.False(t, AnnotationsOutsideMarkup("A [link](https://example.com/[[x]]) destination."))
	assert.False(t, AnnotationsOutsideMarkup("Inline `code [[span]]` here."))
	assert.False(t, AnnotationsOutsideMarkup("```\ncode [[block]]\n```"))
	assert.False(t, AnnotationsOutsideMarkup("An ![alt [[text]]](img.png) image."))
}
