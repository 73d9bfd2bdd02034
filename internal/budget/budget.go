// Package budget estimates prompt sizes and trims retrieved context so that
// a question fits the model's input window. Backends use different
// tokenizers, so estimates use a character heuristic: 1 token is roughly 4
// characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation.
	charsPerToken = 4

	// separatorTokens is the cost of the blank line joining two chunks.
	separatorTokens = 1

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models while leaving room for the answer. Override with
	// MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitHits drops the lowest-ranked hits until fixedTokens plus the
// estimated size of the remaining hit texts fits within maxTokens. hits must
// be ordered best first. The first hit is never dropped, even when it alone
// exceeds the budget; maxTokens <= 0 disables trimming.
func FitHits(fixedTokens int, hits []rag.Hit, maxTokens int) []rag.Hit {
	if maxTokens <= 0 || len(hits) <= 1 {
		return hits
	}

	total := fixedTokens
	for i, h := range hits {
		total += Estimate(h.Chunk.Content) + separatorTokens
		if i > 0 && total > maxTokens {
			return hits[:i]
		}
	}
	return hits
}
