// Package llm is the model call layer: provider backends (Ollama, Claude,
// Gemini), a globally capped call entry point with JSON extraction and
// schema validation, cached prompt sessions and the token/cost tracker.
package llm

import (
	"context"
	"strings"
)

// Provider generates a completion for a prompt. Implementations own their
// wire format; the call layer owns retries, JSON extraction and validation.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// windowSizes maps model-name fragments to the word budget used for context
// windows. Matched in order; the first hit wins.
var windowSizes = []struct {
	fragment string
	words    int
}{
	{"claude", 12000},
	{"gemini", 16000},
	{"llama", 4000},
	{"mistral", 4000},
	{"qwen", 6000},
}

const defaultWindowWords = 3000

// WindowFor returns the sliding-window word budget for a model. Consecutive
// windows overlap by half the budget.
func WindowFor(model string) (windowWords, overlapWords int) {
	words := defaultWindowWords
	model = strings.ToLower(model)
	for _, entry := range windowSizes {
		if strings.Contains(model, entry.fragment) {
			words = entry.words
			break
		}
	}
	return words, words / 2
}
