package memory

import (
	"math"
	"sort"

	"github.com/waxmem/wax/capability"
)

// Source is a bitmask of the recall channels that surfaced a given
// frame, so a caller can see a result came from text search, vector
// search, structured memory, or several at once.
type Source uint8

const (
	SourceText Source = 1 << iota
	SourceVector
	SourceStructuredMemory
)

func (s Source) Has(f Source) bool { return s&f != 0 }

// FusedMatch is one candidate after reciprocal-rank fusion.
type FusedMatch struct {
	FrameID uint32
	Score   float64
	Sources Source
}

// rrfContribution is one channel's contribution to a fused score: an
// ordered list of frame ids, best match first, plus the source tag and
// reciprocal-rank-fusion constant to score it with.
func rrfContribution(scores map[uint32]float64, sources map[uint32]Source, ids []uint32, tag Source, rrfK int) {
	for i, id := range ids {
		rank := i + 1 // 1-based, per reciprocal-rank-fusion convention
		scores[id] += 1.0 / float64(rrfK+rank)
		sources[id] |= tag
	}
}

// fuse combines text, vector, and structured-memory candidates with
// reciprocal-rank fusion. Each input
// slice must already be ordered best-first (as textindex.Search,
// vectorindex.Engine.Search, and the structured-memory scan return
// them). The result is ordered by descending fused score, ties broken
// by ascending frame id.
func fuse(textMatches []capability.TextMatch, vectorMatches []capability.VectorMatch, structuredFrameIDs []uint32, rrfK int) []FusedMatch {
	if rrfK <= 0 {
		rrfK = 1
	}

	scores := make(map[uint32]float64)
	sources := make(map[uint32]Source)

	textIDs := make([]uint32, len(textMatches))
	for i, m := range textMatches {
		textIDs[i] = m.FrameID
	}
	vectorIDs := make([]uint32, len(vectorMatches))
	for i, m := range vectorMatches {
		vectorIDs[i] = m.FrameID
	}

	rrfContribution(scores, sources, textIDs, SourceText, rrfK)
	rrfContribution(scores, sources, vectorIDs, SourceVector, rrfK)
	rrfContribution(scores, sources, structuredFrameIDs, SourceStructuredMemory, rrfK)

	results := make([]FusedMatch, 0, len(scores))
	for id, score := range scores {
		if math.IsNaN(score) {
			score = 0
		}
		results = append(results, FusedMatch{FrameID: id, Score: score, Sources: sources[id]})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FrameID < results[j].FrameID
	})
	return results
}

// ItemKind classifies how much of a frame's content a RAGItem carries,
// per the token budget described in Recall step 6.
type ItemKind uint8

const (
	// ItemExpanded carries the full preview, which fit within
	// rag.expansion_max_tokens.
	ItemExpanded ItemKind = iota
	// ItemSnippet carries the preview truncated to
	// rag.snippet_max_tokens.
	ItemSnippet
	// ItemSurrogate stands in for a frame whose preview was missing or
	// empty, carrying only "frame <id>".
	ItemSurrogate
)

// RAGItem is one entry of a budgeted RAG context.
type RAGItem struct {
	FrameID uint32
	Text    string
	Kind    ItemKind
	Sources Source
	Score   float64
}

// RAGContext is the token-budgeted bundle Recall returns.
type RAGContext struct {
	Items       []RAGItem
	TotalTokens int
}

// previewFunc fetches a result's preview text, already clamped to
// rag.preview_max_bytes by the caller, returning ok=false if no
// content is available for frameID.
type previewFunc func(frameID uint32) (text string, ok bool)

// buildRAGContext assembles a token-budgeted context from fused
// matches, clamped first to topK then to maxSnippets.
func buildRAGContext(matches []FusedMatch, topK, maxSnippets int, fetch previewFunc, expansionMaxTokens, snippetMaxTokens, maxContextTokens int) RAGContext {
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	if maxSnippets > 0 && len(matches) > maxSnippets {
		matches = matches[:maxSnippets]
	}

	var ctx RAGContext
	for _, m := range matches {
		text, ok := fetch(m.FrameID)

		var item RAGItem
		switch {
		case !ok || text == "":
			item = RAGItem{FrameID: m.FrameID, Text: surrogateText(m.FrameID), Kind: ItemSurrogate, Sources: m.Sources, Score: m.Score}
		case estimateTokens(text) <= expansionMaxTokens:
			item = RAGItem{FrameID: m.FrameID, Text: text, Kind: ItemExpanded, Sources: m.Sources, Score: m.Score}
		default:
			item = RAGItem{FrameID: m.FrameID, Text: truncateToTokens(text, snippetMaxTokens), Kind: ItemSnippet, Sources: m.Sources, Score: m.Score}
		}

		itemTokens := estimateTokens(item.Text)
		if maxContextTokens > 0 && ctx.TotalTokens+itemTokens > maxContextTokens {
			remaining := maxContextTokens - ctx.TotalTokens
			if remaining <= 0 {
				break
			}
			item.Text = truncateToTokens(item.Text, remaining)
			itemTokens = estimateTokens(item.Text)
			ctx.Items = append(ctx.Items, item)
			ctx.TotalTokens += itemTokens
			break
		}

		ctx.Items = append(ctx.Items, item)
		ctx.TotalTokens += itemTokens
	}
	return ctx
}

func surrogateText(frameID uint32) string {
	return "frame " + formatUint(frameID)
}

func formatUint(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := make([]byte, 0, 10)
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}
