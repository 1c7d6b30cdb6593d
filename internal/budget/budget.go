// Package budget estimates token counts and splits embedding inputs into
// request-sized batches. Embedding backends use different tokenizers, so the
// estimate is a character heuristic: 1 token ≈ 4 characters. Block text is
// usually English prose, where this slightly over-counts.
package budget

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultBatchTokens is the default per-request token budget for one
	// embedding call. MiniLM-class models truncate inputs at 256 word pieces
	// but servers accept many inputs per request.
	DefaultBatchTokens = 8000

	// DefaultBatchSize caps the number of inputs in one embedding request.
	DefaultBatchSize = 64
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateAll returns the estimated total token count of texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, s := range texts {
		total += Estimate(s)
	}
	return total
}

// Span is a half-open range [Start, End) into the input slice.
type Span struct {
	Start, End int
}

// Batches partitions texts into consecutive spans whose estimated token sum
// stays within maxTokens and whose length stays within maxItems. A single
// text larger than maxTokens gets a span of its own. Non-positive limits
// disable the corresponding bound. Input order is preserved.
func Batches(texts []string, maxTokens, maxItems int) []Span {
	if len(texts) == 0 {
		return nil
	}

	var spans []Span
	start, tokens := 0, 0
	for i, s := range texts {
		t := Estimate(s)
		full := i > start && ((maxTokens > 0 && tokens+t > maxTokens) || (maxItems > 0 && i-start >= maxItems))
		if full {
			spans = append(spans, Span{Start: start, End: i})
			start, tokens = i, 0
		}
		tokens += t
	}
	return append(spans, Span{Start: start, End: len(texts)})
}
