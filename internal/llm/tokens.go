package llm

import "sync/atomic"

// charsPerToken is the rough estimate used when providers report no usage.
const charsPerToken = 4

// TokenTracker is the process-singleton token and cost accumulator. Totals
// span parallel and serial enrichment alike and reset only at process start.
type TokenTracker struct {
	tokens      atomic.Int64
	costPerMTok float64
}

func NewTokenTracker(costPerMTok float64) *TokenTracker {
	return &TokenTracker{costPerMTok: costPerMTok}
}

// Record estimates and accumulates tokens for one prompt/response pair.
func (t *TokenTracker) Record(prompt, response string) {
	t.tokens.Add(int64((len(prompt) + len(response)) / charsPerToken))
}

// Add accumulates an exact token count, for providers that report usage.
func (t *TokenTracker) Add(tokens int64) {
	t.tokens.Add(tokens)
}

// Tokens returns the running total.
func (t *TokenTracker) Tokens() int64 {
	return t.tokens.Load()
}

// Cost returns the estimated spend in USD for the running total.
func (t *TokenTracker) Cost() float64 {
	return float64(t.tokens.Load()) / 1_000_000 * t.costPerMTok
}
