package memory

import (
	"errors"

	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/vectorindex"
)

// SearchMode selects which recall channels Memory.Recall consults
//.
type SearchMode uint8

const (
	// SearchModeTextOnly consults only the text search engine.
	SearchModeTextOnly SearchMode = iota
	// SearchModeVectorOnly consults only the vector engine.
	SearchModeVectorOnly
	// SearchModeHybrid consults both and fuses results with RRF.
	SearchModeHybrid
)

// RAGConfig groups the `rag.*` knobs from's configuration
// table.
type RAGConfig struct {
	SearchMode SearchMode
	// HybridAlpha is unused by the RRF fusion itself but is still
	// accepted so a caller's "hybrid α" configuration round-trips;
	// kept for forward compatibility with a future weighted fusion.
	HybridAlpha float64

	SearchTopK int
	RRFK       int

	PreviewMaxBytes    int
	MaxContextTokens   int
	ExpansionMaxTokens int
	SnippetMaxTokens   int
	MaxSnippets        int
}

// ChunkingConfig groups the `chunking.*` knobs.
type ChunkingConfig struct {
	TargetTokens  int
	OverlapTokens int
}

// Config is every configuration knob's table names.
type Config struct {
	EnableTextSearch   bool
	EnableVectorSearch bool

	RAG      RAGConfig
	Chunking ChunkingConfig

	IngestBatchSize   int
	IngestConcurrency int

	EmbeddingCacheCapacity int

	UseMetalVectorSearch     bool
	RequireOnDeviceProviders bool
	VectorPreference         string

	// VectorSimilarity selects the metric vectorindex.Engine ranks by.
	// Its zero value is vectorindex.SimilarityCosine, the common choice
	// for normalized text embeddings.
	VectorSimilarity vectorindex.Similarity
}

// DefaultConfig returns a Config with the defaults this package uses
// when a caller leaves a field at its zero value, applied by
// Open before validation.
func DefaultConfig() Config {
	return Config{
		EnableTextSearch:   true,
		EnableVectorSearch: false,
		RAG: RAGConfig{
			SearchMode:         SearchModeTextOnly,
			HybridAlpha:        0.5,
			SearchTopK:         20,
			RRFK:               60,
			PreviewMaxBytes:    2048,
			MaxContextTokens:   2000,
			ExpansionMaxTokens: 300,
			SnippetMaxTokens:   80,
			MaxSnippets:        8,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  256,
			OverlapTokens: 32,
		},
		IngestBatchSize:        16,
		IngestConcurrency:      1,
		EmbeddingCacheCapacity: 256,
	}
}

// applyDefaults fills zero-valued numeric fields of c with
// DefaultConfig's values, leaving anything the caller set untouched.
// EnableTextSearch, EnableVectorSearch, RAG.SearchMode, RAG.HybridAlpha
// and Chunking.OverlapTokens are not filled: their zero values are kept.
func applyDefaults(c Config) Config {
	d := DefaultConfig()
	if c.RAG.SearchTopK == 0 {
		c.RAG.SearchTopK = d.RAG.SearchTopK
	}
	if c.RAG.RRFK == 0 {
		c.RAG.RRFK = d.RAG.RRFK
	}
	if c.RAG.PreviewMaxBytes == 0 {
		c.RAG.PreviewMaxBytes = d.RAG.PreviewMaxBytes
	}
	if c.RAG.MaxContextTokens == 0 {
		c.RAG.MaxContextTokens = d.RAG.MaxContextTokens
	}
	if c.RAG.ExpansionMaxTokens == 0 {
		c.RAG.ExpansionMaxTokens = d.RAG.ExpansionMaxTokens
	}
	if c.RAG.SnippetMaxTokens == 0 {
		c.RAG.SnippetMaxTokens = d.RAG.SnippetMaxTokens
	}
	if c.RAG.MaxSnippets == 0 {
		c.RAG.MaxSnippets = d.RAG.MaxSnippets
	}
	if c.Chunking.TargetTokens == 0 {
		c.Chunking.TargetTokens = d.Chunking.TargetTokens
	}
	if c.IngestBatchSize == 0 {
		c.IngestBatchSize = d.IngestBatchSize
	}
	if c.IngestConcurrency == 0 {
		c.IngestConcurrency = d.IngestConcurrency
	}
	if c.EmbeddingCacheCapacity == 0 {
		c.EmbeddingCacheCapacity = d.EmbeddingCacheCapacity
	}
	return c
}

// validate checks the mode/channel pairing rules from
// ("Validation at construction"): text-only needs text enabled;
// vector-only needs vector enabled plus a positive-dimension embedder;
// hybrid needs at least one channel.
func validate(c Config, embedDims int) error {
	switch c.RAG.SearchMode {
	case SearchModeTextOnly:
		if !c.EnableTextSearch {
			return errs.NewPolicy("validate", errors.New("search_mode text-only requires enable_text_search"))
		}
	case SearchModeVectorOnly:
		if !c.EnableVectorSearch {
			return errs.NewPolicy("validate", errors.New("search_mode vector-only requires enable_vector_search"))
		}
		if embedDims <= 0 {
			return errs.NewPolicy("validate", errors.New("search_mode vector-only requires an embedder with positive dimensions"))
		}
	case SearchModeHybrid:
		if !c.EnableTextSearch && !c.EnableVectorSearch {
			return errs.NewPolicy("validate", errors.New("search_mode hybrid requires at least one of enable_text_search/enable_vector_search"))
		}
		if c.EnableVectorSearch && embedDims <= 0 {
			return errs.NewPolicy("validate", errors.New("enable_vector_search requires an embedder with positive dimensions"))
		}
	default:
		return errs.NewPolicy("validate", errors.New("unknown search_mode"))
	}
	if c.EnableVectorSearch && embedDims <= 0 {
		return errs.NewPolicy("validate", errors.New("enable_vector_search requires an embedder"))
	}
	return nil
}
