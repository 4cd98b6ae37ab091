// Package vectorindex implements the reference dense-vector similarity
// engine (C6): a staged, fixed-dimension vector store with cosine, dot
// product, and Euclidean (L2) search, serializable to the MV2V segment
// format for persistence in a store segment.
//
// Grounded on waxfmt's EncodeVecSegment/DecodeVecSegment (MV2V codec,
// vecseg.go) for the on-disk shape, and on textindex's staged-mutation
// lifecycle for the add/remove/commit/rollback pattern.
package vectorindex

import (
	"math"
	"sort"

	"github.com/waxmem/wax/capability"
	"github.com/waxmem/wax/waxfmt"
)

// Match is one ranked search result. It is an alias of
// capability.VectorMatch so that *Engine satisfies
// capability.VectorBackend without a conversion.
type Match = capability.VectorMatch

// Similarity selects the metric Search ranks by.
type Similarity uint8

const (
	SimilarityCosine Similarity = Similarity(waxfmt.VecSimilarityCosine)
	SimilarityDot    Similarity = Similarity(waxfmt.VecSimilarityDot)
	SimilarityL2     Similarity = Similarity(waxfmt.VecSimilarityL2)
)

type mutationKind int

const (
	mutationAdd mutationKind = iota
	mutationRemove
)

type stagedMutation struct {
	kind    mutationKind
	frameID uint32
	vector  []float32
}

// Engine is the staged, in-memory fixed-dimension vector index
// described by
type Engine struct {
	dim        uint32
	similarity Similarity

	vectors map[uint32][]float32
	// order preserves ascending insertion order of live frame ids so
	// Search's tie-break iterates deterministically.
	order []uint32

	staged []stagedMutation
}

// New returns an empty vector engine for vectors of the given
// dimension, ranked by similarity.
func New(dim uint32, similarity Similarity) *Engine {
	return &Engine{
		dim:        dim,
		similarity: similarity,
		vectors:    make(map[uint32][]float32),
	}
}

// Dimensions returns the fixed vector length this engine holds.
func (e *Engine) Dimensions() int { return int(e.dim) }

// Add immediately stores vector under frameID, replacing any prior
// vector for that id. The vector's length must equal Dimensions().
func (e *Engine) Add(frameID uint32, vector []float32) error {
	if uint32(len(vector)) != e.dim {
		return errDimensionMismatch
	}
	e.insert(frameID, vector)
	return nil
}

// AddBatch adds every (frameIDs[i], vectors[i]) pair. len(frameIDs)
// must equal len(vectors).
func (e *Engine) AddBatch(frameIDs []uint32, vectors [][]float32) error {
	if len(frameIDs) != len(vectors) {
		return errMismatchedLengths
	}
	for i, id := range frameIDs {
		if err := e.Add(id, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes frameID's vector, if present.
func (e *Engine) Remove(frameID uint32) {
	e.remove(frameID)
}

func (e *Engine) insert(frameID uint32, vector []float32) {
	if _, exists := e.vectors[frameID]; !exists {
		e.order = append(e.order, frameID)
	}
	cp := append([]float32(nil), vector...)
	e.vectors[frameID] = cp
}

func (e *Engine) remove(frameID uint32) {
	if _, ok := e.vectors[frameID]; !ok {
		return
	}
	delete(e.vectors, frameID)
	for i, id := range e.order {
		if id == frameID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Search ranks every stored vector against query by the engine's
// similarity metric and returns the topK highest-scoring matches,
// ties broken by ascending frame id. For L2 the score is the negated
// Euclidean distance, so "higher is better" holds uniformly. query's
// length must equal Dimensions().
func (e *Engine) Search(query []float32, topK int) ([]Match, error) {
	if uint32(len(query)) != e.dim {
		return nil, errDimensionMismatch
	}
	if topK <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(e.order))
	for _, frameID := range e.order {
		score, err := e.score(query, e.vectors[frameID])
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{FrameID: frameID, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].FrameID < matches[j].FrameID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (e *Engine) score(a, b []float32) (float64, error) {
	switch e.similarity {
	case SimilarityCosine:
		return cosineSimilarity(a, b), nil
	case SimilarityDot:
		return dotProduct(a, b), nil
	case SimilarityL2:
		return -euclideanDistance(a, b), nil
	default:
		return 0, errUnknownSimilarity
	}
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// StageAdd queues an add mutation, invisible to Search until
// CommitStaged.
func (e *Engine) StageAdd(frameID uint32, vector []float32) error {
	if uint32(len(vector)) != e.dim {
		return errDimensionMismatch
	}
	cp := append([]float32(nil), vector...)
	e.staged = append(e.staged, stagedMutation{kind: mutationAdd, frameID: frameID, vector: cp})
	return nil
}

// StageAddBatch queues an add mutation for every (frameIDs[i],
// vectors[i]) pair. len(frameIDs) must equal len(vectors).
func (e *Engine) StageAddBatch(frameIDs []uint32, vectors [][]float32) error {
	if len(frameIDs) != len(vectors) {
		return errMismatchedLengths
	}
	for i, id := range frameIDs {
		if err := e.StageAdd(id, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// StageRemove queues a remove mutation.
func (e *Engine) StageRemove(frameID uint32) {
	e.staged = append(e.staged, stagedMutation{kind: mutationRemove, frameID: frameID})
}

// PendingMutationCount returns the number of staged, uncommitted
// mutations.
func (e *Engine) PendingMutationCount() int {
	return len(e.staged)
}

// CommitStaged applies every staged mutation in insertion order, so a
// later mutation on the same frame id wins, then clears the staging
// buffer.
func (e *Engine) CommitStaged() error {
	for _, m := range e.staged {
		switch m.kind {
		case mutationAdd:
			e.insert(m.frameID, m.vector)
		case mutationRemove:
			e.remove(m.frameID)
		}
	}
	e.staged = nil
	return nil
}

// RollbackStaged discards every staged mutation without applying it.
func (e *Engine) RollbackStaged() {
	e.staged = nil
}

// SerializeMetalSegment encodes every live vector as an MV2V segment
// in ascending frame-id order, suitable for a store "vec" segment.
func (e *Engine) SerializeMetalSegment() ([]byte, error) {
	ids := append([]uint32(nil), e.order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vectors := make([][]float32, len(ids))
	frameIDs := make([]uint64, len(ids))
	for i, id := range ids {
		vectors[i] = e.vectors[id]
		frameIDs[i] = uint64(id)
	}
	return waxfmt.EncodeVecSegment(e.dim, uint8(e.similarity), vectors, frameIDs)
}

// LoadMetalSegment replaces the engine's contents with the dense
// vectors decoded from an MV2V segment, rejecting a segment whose
// encoding is not dense-float or whose dimension/similarity does not
// match this engine. Any staged mutations are discarded.
func (e *Engine) LoadMetalSegment(buf []byte) error {
	seg, err := waxfmt.DecodeVecSegment(buf)
	if err != nil {
		return err
	}
	if seg.Encoding != waxfmt.VecEncodingDenseFloat {
		return errUnsupportedSegmentEncoding
	}
	if seg.Dimension != e.dim {
		return errDimensionMismatch
	}
	if Similarity(seg.Similarity) != e.similarity {
		return errUnknownSimilarity
	}

	e.vectors = make(map[uint32][]float32, len(seg.FrameIDs))
	e.order = e.order[:0]
	e.staged = nil
	for i, id := range seg.FrameIDs {
		e.insert(uint32(id), seg.Vectors[i])
	}
	return nil
}
