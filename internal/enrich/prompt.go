package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
)

// enrichmentRules are the prompt-level contract sent with every document.
// The validator enforces the same rules mechanically, so a model that
// ignores them only wastes a retry.
const enrichmentRules = `Rules:
- Only annotations in [[...]] may be added; nothing else may change, not even punctuation or whitespace.
- Annotations may only introduce information that appears elsewhere in the provided window context.
- Annotations target pronouns, deictic references ("this"/"that"/"these"), acronyms (expanded to a form present in the document), temporal and geographic clarifications, and role/relationship qualifiers.
- URLs, image alt text, and any other Markdown syntax are untouchable; no [[...]] inside links/images/code fences.
- Do not repeat information already explicit in the same sentence.`

// responseShape documents the required reply format inside the prompt.
const responseShape = `Respond with a strict JSON object:
{"enhanced_paragraphs": [{"text": "<paragraph with [[...]] annotations>", "summary": "<one line>"}]}
Return exactly one entry per input paragraph, in order.`

// Instructions builds the document-level cached context pushed once per
// session: identity of the document plus the full rule list.
func Instructions(title, url, description string) string {
	var b strings.Builder
	b.WriteString("You add disambiguating context annotations to document paragraphs.\n\n")
	b.WriteString("Document: " + title + "\n")
	b.WriteString("URL: " + url + "\n")
	if description != "" {
		b.WriteString("Description: " + description + "\n")
	}
	b.WriteString("\n")
	b.WriteString(enrichmentRules)
	b.WriteString("\n\n")
	b.WriteString(responseShape)
	return b.String()
}

// BatchPrompt assembles one call: the window's surrounding context plus the
// batch's numbered paragraphs, each JSON-escaped.
func BatchPrompt(window *Window, batch *Batch) string {
	var b strings.Builder
	b.WriteString("Window context:\n")
	b.WriteString(window.Context)
	b.WriteString("\n\nParagraphs to annotate:\n")
	for i, p := range batch.Paragraphs {
		escaped, _ := json.Marshal(p)
		fmt.Fprintf(&b, "%d. %s\n", i+1, string(escaped))
	}
	b.WriteString("\n")
	b.WriteString(responseShape)
	return b.String()
}

// EnhancedParagraph is one annotated paragraph in a model response.
type EnhancedParagraph struct {
	Text    string `json:"text" validate:"required"`
	Summary string `json:"summary"`
}

// BatchResponse is the strict response schema for one batch call.
type BatchResponse struct {
	EnhancedParagraphs []EnhancedParagraph `json:"enhanced_paragraphs" validate:"required,min=1,dive"`
}
