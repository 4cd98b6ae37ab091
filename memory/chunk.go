package memory

import "strings"

// chunk splits content into overlapping windows of targetTokens
// whitespace-separated tokens, the last window keeping whatever
// remains. A non-positive targetTokens
// or empty content yields a single chunk equal to content (or no
// chunks for empty content).
func chunk(content string, targetTokens, overlapTokens int) []string {
	tokens := strings.Fields(content)
	if len(tokens) == 0 {
		return nil
	}
	if targetTokens <= 0 || len(tokens) <= targetTokens {
		return []string{content}
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= targetTokens {
		overlapTokens = targetTokens - 1
	}

	stride := targetTokens - overlapTokens
	var chunks []string
	for start := 0; start < len(tokens); start += stride {
		end := start + targetTokens
		if end >= len(tokens) {
			chunks = append(chunks, strings.Join(tokens[start:], " "))
			break
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
	}
	return chunks
}

// estimateTokens approximates a token count from whitespace-split
// word count, used by the RAG context token budget. The core has no tokenizer of its own to match a
// specific embedder/LLM's vocabulary, so word count is the portable
// proxy the orchestrator budgets against.
func estimateTokens(s string) int {
	return len(strings.Fields(s))
}

// truncateToTokens clamps s to its first maxTokens whitespace tokens,
// the same proxy estimateTokens counts by. A non-positive maxTokens
// yields an empty string.
func truncateToTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := strings.Fields(s)
	if len(tokens) <= maxTokens {
		return s
	}
	return strings.Join(tokens[:maxTokens], " ")
}
