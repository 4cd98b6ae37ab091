// Package capability defines the narrow interfaces the memory
// orchestrator (C8) depends on for embedding, vector search, and text
// search, so alternative backends can be plugged in without the
// orchestrator depending on any concrete implementation. Each
// capability is a small interface satisfied by composition rather than
// an abstract base type.
package capability

import "context"

// Embedder turns text into dense vectors for the vector search
// channel.
type Embedder interface {
	// Dimensions is the fixed length of every vector this embedder
	// produces.
	Dimensions() int
	// Normalize reports whether Embed/EmbedBatch already return
	// unit-normalized vectors; normalization, if declared, is the
	// provider's own responsibility.
	Normalize() bool
	// Identity names the embedding model/provider, for diagnostics.
	Identity() string
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is an optional capability: an Embedder that can embed
// many texts in one call, used by memory.Remember's ingest batching.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorMatch is one ranked result from a VectorBackend search.
type VectorMatch struct {
	FrameID uint32
	Score   float64
}

// VectorBackend matches the vectorindex.Engine surface
// so memory can depend on the interface instead of the concrete type.
type VectorBackend interface {
	Dimensions() int
	StageAdd(frameID uint32, vector []float32) error
	StageAddBatch(frameIDs []uint32, vectors [][]float32) error
	StageRemove(frameID uint32)
	PendingMutationCount() int
	CommitStaged() error
	RollbackStaged()
	Search(query []float32, topK int) ([]VectorMatch, error)
}

// TextMatch is one ranked result from a TextBackend search.
type TextMatch struct {
	FrameID uint32
	Score   float64
}

// TextBackend matches the textindex.Engine surface.
// Search never fails: an empty query, a non-positive topK, or no
// matching document all yield an empty result.
type TextBackend interface {
	StageIndex(frameID uint32, text string) error
	StageIndexBatch(frameIDs []uint32, texts []string) error
	StageRemove(frameID uint32)
	PendingMutationCount() int
	CommitStaged() error
	RollbackStaged()
	Search(query string, topK int) []TextMatch
}
