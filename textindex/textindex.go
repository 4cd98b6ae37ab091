// Package textindex implements the reference lexical full-text search
// engine (C5): a staged inverted index over tokenized documents with
// deterministic top-k ranking.
//
// Grounded on the staged-mutation lifecycle (stage/commit/
// rollback, one pending-count, apply-in-order semantics) seen
// throughout its blob package's Set builders, generalized here to
// token postings instead of time-series blob builders.
package textindex

import (
	"sort"
	"strings"
	"unicode"

	"github.com/waxmem/wax/capability"
)

// Match is one ranked search result. It is an alias of capability.TextMatch
// so that *Engine satisfies capability.TextBackend without a conversion.
type Match = capability.TextMatch

type mutationKind int

const (
	mutationIndex mutationKind = iota
	mutationRemove
)

type stagedMutation struct {
	kind    mutationKind
	frameID uint32
	tokens  []string
}

// Engine is the staged, in-memory inverted index described by
//
type Engine struct {
	docs    map[uint32][]string
	postings map[string]map[uint32]struct{}

	staged []stagedMutation
}

// New returns an empty text search engine.
func New() *Engine {
	return &Engine{
		docs:     make(map[uint32][]string),
		postings: make(map[string]map[uint32]struct{}),
	}
}

// Tokenize lowercases text and splits it on any non-alphanumeric
// Unicode rune, dropping empty tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

// Index immediately tokenizes and indexes text under frameID,
// replacing any prior document for that id.
func (e *Engine) Index(frameID uint32, text string) {
	e.removeDoc(frameID)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return
	}
	e.docs[frameID] = tokens
	for _, tok := range tokens {
		set, ok := e.postings[tok]
		if !ok {
			set = make(map[uint32]struct{})
			e.postings[tok] = set
		}
		set[frameID] = struct{}{}
	}
}

// IndexBatch indexes every (ids[i], texts[i]) pair. len(ids) must
// equal len(texts).
func (e *Engine) IndexBatch(ids []uint32, texts []string) error {
	if len(ids) != len(texts) {
		return errMismatchedLengths
	}
	for i, id := range ids {
		e.Index(id, texts[i])
	}
	return nil
}

// Remove deletes frameID's document from the index, if present.
func (e *Engine) Remove(frameID uint32) {
	e.removeDoc(frameID)
}

func (e *Engine) removeDoc(frameID uint32) {
	tokens, ok := e.docs[frameID]
	if !ok {
		return
	}
	for _, tok := range tokens {
		if set, ok := e.postings[tok]; ok {
			delete(set, frameID)
			if len(set) == 0 {
				delete(e.postings, tok)
			}
		}
	}
	delete(e.docs, frameID)
}

// Search tokenizes query and ranks documents by the sum of their
// term frequency for each query token present in the document, ties
// broken by ascending frame id. An empty query, a
// non-positive topK, or no matching document yields an empty result.
func (e *Engine) Search(query string, topK int) []Match {
	if topK <= 0 {
		return nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scores := make(map[uint32]float64)
	for _, tok := range tokens {
		set, ok := e.postings[tok]
		if !ok {
			continue
		}
		for frameID := range set {
			scores[frameID] += termFrequency(e.docs[frameID], tok)
		}
	}

	matches := make([]Match, 0, len(scores))
	for frameID, score := range scores {
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
	return matches
}

func termFrequency(doc []string, token string) float64 {
	var n float64
	for _, t := range doc {
		if t == token {
			n++
		}
	}
	return n
}

// StageIndex queues an index mutation, invisible to Search until
// CommitStaged.
func (e *Engine) StageIndex(frameID uint32, text string) error {
	e.staged = append(e.staged, stagedMutation{kind: mutationIndex, frameID: frameID, tokens: Tokenize(text)})
	return nil
}

// StageIndexBatch queues an index mutation for every (ids[i], texts[i])
// pair. len(ids) must equal len(texts).
func (e *Engine) StageIndexBatch(ids []uint32, texts []string) error {
	if len(ids) != len(texts) {
		return errMismatchedLengths
	}
	for i, id := range ids {
		if err := e.StageIndex(id, texts[i]); err != nil {
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
		case mutationIndex:
			e.removeDoc(m.frameID)
			if len(m.tokens) == 0 {
				continue
			}
			e.docs[m.frameID] = m.tokens
			for _, tok := range m.tokens {
				set, ok := e.postings[tok]
				if !ok {
					set = make(map[uint32]struct{})
					e.postings[tok] = set
				}
				set[m.frameID] = struct{}{}
			}
		case mutationRemove:
			e.removeDoc(m.frameID)
		}
	}
	e.staged = nil
	return nil
}

// RollbackStaged discards every staged mutation without applying it.
func (e *Engine) RollbackStaged() {
	e.staged = nil
}
