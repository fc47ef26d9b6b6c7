// Package enrich implements context enrichment: sliding-window planning,
// batched model calls, strict preservation validation and the
// content_status lifecycle around the raw -> contexted transition.
package enrich

import "strings"

// Window is a contiguous paragraph range whose joined text approximates the
// model's word budget. Consecutive windows overlap by half the budget.
type Window struct {
	Start   int // First paragraph index covered
	End     int // Last paragraph index covered, inclusive
	Context string
	Batches []Batch
}

// Batch is a contiguous run of paragraphs within one window, accumulated to
// the configured word target. Indices are original paragraph positions.
type Batch struct {
	Indices    []int
	Paragraphs []string
}

// SplitParagraphs splits a Markdown body into blank-line separated
// paragraphs, preserving Markdown syntax inside each.
func SplitParagraphs(body string) []string {
	var paragraphs []string
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		paragraphs = append(paragraphs, strings.Trim(block, "\n"))
	}
	return paragraphs
}

// JoinParagraphs reassembles a body from paragraphs.
func JoinParagraphs(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n") + "\n"
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Plan builds the window and batch plan for a document. Every paragraph is
// covered by at least one batch; batches never span windows.
func Plan(paragraphs []string, windowWords, batchWords int) []Window {
	if len(paragraphs) == 0 {
		return nil
	}
	if windowWords < 1 {
		windowWords = 1
	}
	if batchWords < 1 {
		batchWords = 1
	}

	words := make([]int, len(paragraphs))
	for i, p := range paragraphs {
		words[i] = wordCount(p)
	}

	var windows []Window
	start := 0
	for start < len(paragraphs) {
		end := start
		total := words[start]
		for end+1 < len(paragraphs) && total+words[end+1] <= windowWords {
			end++
			total += words[end]
		}

		w := Window{
			Start:   start,
			End:     end,
			Context: windowContext(paragraphs[start:end+1], windowWords),
		}
		w.Batches = buildBatches(paragraphs, words, start, end, batchWords)
		windows = append(windows, w)

		if end == len(paragraphs)-1 {
			break
		}

		// Advance by half the window for 50% overlap, always making progress
		next := start
		carried := 0
		for next <= end && carried < total/2 {
			carried += words[next]
			next++
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return windows
}

// buildBatches packs contiguous paragraphs until adding the next one would
// exceed the word target. A paragraph longer than the target forms its own
// batch.
func buildBatches(paragraphs []string, words []int, start, end, batchWords int) []Batch {
	var batches []Batch
	var current Batch
	total := 0

	flush := func() {
		if len(current.Indices) > 0 {
			batches = append(batches, current)
			current = Batch{}
			total = 0
		}
	}

	for i := start; i <= end; i++ {
		if len(current.Indices) > 0 && total+words[i] > batchWords {
			flush()
		}
		current.Indices = append(current.Indices, i)
		current.Paragraphs = append(current.Paragraphs, paragraphs[i])
		total += words[i]
	}
	flush()

	return batches
}

// windowContext joins the window's paragraphs, trimming the tail at a
// sentence boundary when one falls in the last 20% of the text.
func windowContext(paragraphs []string, windowWords int) string {
	text := strings.Join(paragraphs, "\n\n")

	fields := strings.Fields(text)
	if len(fields) <= windowWords {
		return trimAtSentence(text)
	}
	return trimAtSentence(strings.Join(fields[:windowWords], " "))
}

var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// trimAtSentence cuts the text at the last sentence boundary found within
// its final 20%, when one exists.
func trimAtSentence(text string) string {
	if len(text) == 0 {
		return text
	}
	threshold := len(text) * 4 / 5

	best := -1
	for _, ender := range sentenceEnders {
		if i := strings.LastIndex(text, ender); i >= threshold && i > best {
			best = i
		}
	}
	if best < 0 {
		return text
	}
	return text[:best+1]
}
