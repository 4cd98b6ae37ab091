// Package memory implements the RAG memory orchestrator (C8): it
// chunks and embeds ingested content, fans staged writes out across the
// text (C5), vector (C6), and structured-memory (C7) engines, commits
// them atomically through the store (C4), and answers Recall queries
// with a fused, token-budgeted RAG context.
//
// Built as a facade that wraps several subpackages behind one
// constructor and a handful of top-level methods, generalized to
// orchestrate four subsystems instead of one.
package memory

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/hashicorp/golang-lru/v2"

	"github.com/waxmem/wax/capability"
	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/store"
	"github.com/waxmem/wax/structmem"
	"github.com/waxmem/wax/textindex"
	"github.com/waxmem/wax/vectorindex"
	"github.com/waxmem/wax/waxfmt"
)

// pendingFact records a RememberFact call that has been staged but not
// yet promoted by Flush, so a successful commit can update
// factFrameByKey without re-scanning the store.
type pendingFact struct {
	key     string
	frameID uint32
}

// Memory is an open RAG store: a C4 store plus the C5/C6/C7 engines
// derived from it, kept in sync by Remember/RememberFact/Flush/Recall.
type Memory struct {
	store *store.Store
	text  *textindex.Engine
	// vector is nil when the configuration disables vector search.
	vector *vectorindex.Engine
	facts  *structmem.Engine

	embedder capability.Embedder
	// cache is nil when embedding_cache_capacity is non-positive.
	cache *lru.Cache[string, []float32]

	cfg Config

	// factFrameByKey maps a committed fact's (entity, attribute) to the
	// frame id carrying it, rebuilt at warm start and kept current by
	// Flush.
	factFrameByKey map[string]uint32
	pendingFacts   []pendingFact

	closed bool
}

// Open opens (or creates, if path does not yet exist) a store at path
// and constructs the orchestrator over it, replaying the store's
// committed state into fresh C5/C6/C7 engines.
func Open(path string, cfg Config, embedder capability.Embedder) (*Memory, error) {
	cfg = applyDefaults(cfg)

	dims := 0
	if embedder != nil {
		dims = embedder.Dimensions()
	}
	if err := validate(cfg, dims); err != nil {
		return nil, err
	}

	st, err := openOrCreateStore(path)
	if err != nil {
		return nil, err
	}

	var vec *vectorindex.Engine
	if cfg.EnableVectorSearch {
		vec = vectorindex.New(uint32(dims), cfg.VectorSimilarity)
	}

	var cache *lru.Cache[string, []float32]
	if cfg.EmbeddingCacheCapacity > 0 {
		cache, err = lru.New[string, []float32](cfg.EmbeddingCacheCapacity)
		if err != nil {
			_ = st.Close()
			return nil, errs.NewPolicy("open", err)
		}
	}

	m := &Memory{
		store:          st,
		text:           textindex.New(),
		vector:         vec,
		facts:          structmem.New(),
		embedder:       embedder,
		cache:          cache,
		cfg:            cfg,
		factFrameByKey: make(map[string]uint32),
	}

	if err := m.warmStart(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return m, nil
}

func openOrCreateStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return store.Create(path)
	}
	return store.Open(path, true)
}

// warmStart rebuilds the text, vector, and structured-memory engines
// from the store's committed frames, segments, and embedding journal,
// since only the store itself is durable across a process restart.
func (m *Memory) warmStart() error {
	frames := m.store.FrameMetas()

	for _, f := range frames {
		if f.Status != waxfmt.FrameLive {
			continue
		}
		content, err := m.store.FrameContent(f.ID)
		if err != nil {
			return errs.NewStore("warm_start", err)
		}

		if entity, attribute, value, metadata, ok := decodeFact(content); ok {
			if _, err := m.facts.Upsert(entity, attribute, value, metadata); err != nil {
				return errs.NewStore("warm_start", err)
			}
			m.factFrameByKey[factKey(entity, attribute)] = f.ID
			m.text.Index(f.ID, renderFactSearchText(entity, attribute, value))
			continue
		}

		m.text.Index(f.ID, string(content))
	}

	if m.vector == nil {
		return nil
	}
	entries, err := m.store.EmbeddingJournal()
	if err != nil {
		return errs.NewStore("warm_start", err)
	}
	for _, e := range entries {
		if int(e.FrameID) >= len(frames) || frames[e.FrameID].Status != waxfmt.FrameLive {
			continue
		}
		if err := m.vector.Add(e.FrameID, e.Vector); err != nil {
			return errs.NewStore("warm_start", err)
		}
	}
	return nil
}

// Remember chunks content into overlapping windows, writes each as a
// frame, stages it into the text index, and (if vector search is
// enabled) embeds and stages it into the vector index. It returns the ids of the frames created, in chunk order.
// Nothing is visible to Recall until Flush.
func (m *Memory) Remember(ctx context.Context, content string, metadata store.Metadata) ([]uint32, error) {
	if m.closed {
		return nil, closedErr("remember")
	}

	chunks := chunk(content, m.cfg.Chunking.TargetTokens, m.cfg.Chunking.OverlapTokens)
	if len(chunks) == 0 {
		return nil, nil
	}

	ids := make([]uint32, len(chunks))
	for i, c := range chunks {
		id, err := m.store.Put([]byte(c), metadata)
		if err != nil {
			return nil, err
		}
		if err := m.text.StageIndex(id, c); err != nil {
			return nil, err
		}
		ids[i] = id
	}

	if m.cfg.EnableVectorSearch && m.vector != nil {
		if err := m.embedAndStage(ctx, ids, chunks); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// embedAndStage embeds chunks in batches of ingest_batch_size, using
// the embedder's batch capability when available, staging each vector
// into the vector index and journaling it through the store.
func (m *Memory) embedAndStage(ctx context.Context, ids []uint32, texts []string) error {
	batchSize := m.cfg.IngestBatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	batchEmbedder, isBatch := m.embedder.(capability.BatchEmbedder)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchIDs := ids[start:end]
		batchTexts := texts[start:end]

		vectors := make([][]float32, len(batchTexts))
		var err error
		if isBatch {
			vectors, err = batchEmbedder.EmbedBatch(ctx, batchTexts)
			if err != nil {
				return err
			}
		} else {
			for i, t := range batchTexts {
				vectors[i], err = m.embedder.Embed(ctx, t)
				if err != nil {
					return err
				}
			}
		}

		if err := m.vector.StageAddBatch(batchIDs, vectors); err != nil {
			return err
		}
		for i, id := range batchIDs {
			if err := m.store.PutEmbedding(id, vectors[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// RememberFact stages a structured-memory upsert and a text-index
// entry for the rendered "entity attribute value" tokens, carried by a
// dedicated frame. Nothing is visible to
// Recall or Get/QueryByEntityPrefix-style lookups until Flush.
func (m *Memory) RememberFact(entity, attribute, value string, metadata map[string]string) (uint32, error) {
	if m.closed {
		return 0, closedErr("remember_fact")
	}
	if entity == "" {
		return 0, errs.NewPolicy("remember_fact", errors.New("entity must not be empty"))
	}
	if attribute == "" {
		return 0, errs.NewPolicy("remember_fact", errors.New("attribute must not be empty"))
	}

	id, err := m.store.Put(encodeFact(entity, attribute, value, metadata), nil)
	if err != nil {
		return 0, err
	}
	if err := m.facts.StageUpsert(entity, attribute, value, metadata); err != nil {
		return 0, err
	}
	if err := m.text.StageIndex(id, renderFactSearchText(entity, attribute, value)); err != nil {
		return 0, err
	}

	m.pendingFacts = append(m.pendingFacts, pendingFact{key: factKey(entity, attribute), frameID: id})
	return id, nil
}

// Flush commits the store and, only on success, promotes the staged
// mutations of the text, vector, and structured-memory engines. If the store commit fails, every subsystem is left
// exactly as it was before Flush was called: the staged mutations
// remain staged (the underlying WAL mutations are still pending too),
// so a later successful Flush still picks them up.
func (m *Memory) Flush() error {
	if m.closed {
		return closedErr("flush")
	}

	if err := m.store.Commit(); err != nil {
		return err
	}

	if err := m.text.CommitStaged(); err != nil {
		return err
	}
	if m.vector != nil {
		if err := m.vector.CommitStaged(); err != nil {
			return err
		}
	}
	if err := m.facts.CommitStaged(); err != nil {
		return err
	}

	for _, pf := range m.pendingFacts {
		m.factFrameByKey[pf.key] = pf.frameID
	}
	m.pendingFacts = nil
	return nil
}

// Recall answers a query by consulting the enabled channels, fusing
// their candidates with reciprocal-rank fusion, and assembling a
// token-budgeted RAG context. embedding, if
// non-nil, is used as the query vector instead of embedding query, and
// must match the vector engine's dimensions.
func (m *Memory) Recall(ctx context.Context, query string, embedding []float32) (RAGContext, error) {
	if m.closed {
		return RAGContext{}, closedErr("recall")
	}

	var textMatches []capability.TextMatch
	if m.cfg.EnableTextSearch && m.cfg.RAG.SearchMode != SearchModeVectorOnly {
		textMatches = m.text.Search(query, m.cfg.RAG.SearchTopK)
	}

	var vectorMatches []capability.VectorMatch
	if m.cfg.EnableVectorSearch && m.vector != nil && m.cfg.RAG.SearchMode != SearchModeTextOnly {
		queryVector, err := m.resolveQueryVector(ctx, query, embedding)
		if err != nil {
			return RAGContext{}, err
		}
		vectorMatches, err = m.vector.Search(queryVector, m.cfg.RAG.SearchTopK)
		if err != nil {
			return RAGContext{}, err
		}
	}

	structuredIDs := m.structuredCandidates(query)
	fused := fuse(textMatches, vectorMatches, structuredIDs, m.cfg.RAG.RRFK)

	return buildRAGContext(fused, m.cfg.RAG.SearchTopK, m.cfg.RAG.MaxSnippets, m.preview,
		m.cfg.RAG.ExpansionMaxTokens, m.cfg.RAG.SnippetMaxTokens, m.cfg.RAG.MaxContextTokens), nil
}

// resolveQueryVector returns the explicit embedding if given (after a
// dimension check), else the embedder's vector for query, served from
// the LRU cache when present.
func (m *Memory) resolveQueryVector(ctx context.Context, query string, embedding []float32) ([]float32, error) {
	if embedding != nil {
		if len(embedding) != m.vector.Dimensions() {
			return nil, errs.NewPolicy("recall", errors.New("embedding dimension does not match vector engine"))
		}
		return embedding, nil
	}

	if m.cache != nil {
		if v, ok := m.cache.Get(query); ok {
			return v, nil
		}
	}
	v, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Add(query, v)
	}
	return v, nil
}

// structuredHit pairs a committed structured-memory entry with how many
// query tokens its rendered text contains.
type structuredHit struct {
	entry   structmem.Entry
	matched int
}

// structuredCandidates returns the frame ids of every committed
// structured-memory entry whose rendered text contains at least one
// query token, tagged with the StructuredMemory source. There is no
// native rank for structured hits, so this orders them by descending matched-token count,
// ties broken by (entity, attribute, id) — the closest read of "tagged
// with the StructuredMemory source" that still gives fuse() a
// deterministic, best-first order to assign RRF ranks over.
func (m *Memory) structuredCandidates(query string) []uint32 {
	queryTokens := textindex.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	entries := m.facts.QueryByEntityPrefix("", -1)
	hits := make([]structuredHit, 0, len(entries))
	for _, e := range entries {
		tokens := textindex.Tokenize(renderFactSearchText(e.Entity, e.Attribute, e.Value))
		matched := 0
		for _, t := range tokens {
			if _, ok := querySet[t]; ok {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, structuredHit{entry: e, matched: matched})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].matched != hits[j].matched {
			return hits[i].matched > hits[j].matched
		}
		if hits[i].entry.Entity != hits[j].entry.Entity {
			return hits[i].entry.Entity < hits[j].entry.Entity
		}
		if hits[i].entry.Attribute != hits[j].entry.Attribute {
			return hits[i].entry.Attribute < hits[j].entry.Attribute
		}
		return hits[i].entry.ID < hits[j].entry.ID
	})

	ids := make([]uint32, 0, len(hits))
	for _, h := range hits {
		if frameID, ok := m.factFrameByKey[factKey(h.entry.Entity, h.entry.Attribute)]; ok {
			ids = append(ids, frameID)
		}
	}
	return ids
}

// preview fetches frameID's stored content, clamped to
// rag.preview_max_bytes, rendering a fact frame back into its search
// text rather than its raw binary encoding.
func (m *Memory) preview(frameID uint32) (string, bool) {
	content, err := m.store.FrameContent(frameID)
	if err != nil || len(content) == 0 {
		return "", false
	}
	text := string(content)
	if entity, attribute, value, _, ok := decodeFact(content); ok {
		text = renderFactSearchText(entity, attribute, value)
	}
	if max := m.cfg.RAG.PreviewMaxBytes; max > 0 && len(text) > max {
		text = text[:max]
	}
	return text, true
}

// Close releases the store; flushing beforehand is the caller's
// responsibility. store.Close itself auto-commits any mutations
// made through this session's Put/Delete/Supersede/PutEmbedding calls,
// but staged (not yet flushed) C5/C6/C7 mutations are discarded.
func (m *Memory) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.store.Close()
}

func closedErr(op string) error {
	return errs.NewStore(op, errors.New("memory is closed"))
}
