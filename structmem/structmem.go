// Package structmem implements the structured-memory store (C7): an
// in-memory map keyed by composite (entity, attribute), each entry
// carrying a monotonically increasing version, with staged mutation
// semantics mirroring textindex.
//
// Grounded on internal/hash (xxHash64 key hashing) and
// internal/collision (hash-collision bookkeeping for diagnostics),
// adapted here from metric-name collision tracking to
// structured-memory composite keys.
package structmem

import (
	"sort"
	"strings"

	"github.com/waxmem/wax/internal/collision"
	"github.com/waxmem/wax/internal/hash"
)

const keySeparator = "\x00"

// Entry is one structured-memory record.
type Entry struct {
	ID        uint32
	Entity    string
	Attribute string
	Value     string
	Metadata  map[string]string
	Version   uint32
}

type mutationKind int

const (
	mutationUpsert mutationKind = iota
	mutationRemove
)

type stagedMutation struct {
	kind      mutationKind
	entity    string
	attribute string
	value     string
	metadata  map[string]string
}

// Engine is the staged, in-memory structured-memory store described
// by
type Engine struct {
	entries map[string]*Entry // composite key -> entry
	tracker *collision.Tracker
	nextID  uint32

	staged []stagedMutation
}

// New returns an empty structured-memory engine.
func New() *Engine {
	return &Engine{
		entries: make(map[string]*Entry),
		tracker: collision.NewTracker(),
		nextID:  1,
	}
}

func compositeKey(entity, attribute string) string {
	return entity + keySeparator + attribute
}

// HasHashCollision reports whether two distinct (entity, attribute)
// keys have ever hashed to the same xxHash64 value. It is a
// diagnostic signal only; exact lookups are unaffected since the
// primary index is keyed by the full composite string, not the hash.
func (e *Engine) HasHashCollision() bool {
	return e.tracker.HasCollision()
}

// Upsert inserts or updates the entry for (entity, attribute). On
// update, Version is incremented and Value/Metadata are replaced; on
// insert, Version starts at 1 and a new id is assigned. Entity and
// attribute must both be non-empty.
func (e *Engine) Upsert(entity, attribute, value string, metadata map[string]string) (Entry, error) {
	entry, err := e.upsert(entity, attribute, value, metadata)
	if err != nil {
		return Entry{}, err
	}
	return *entry, nil
}

func (e *Engine) upsert(entity, attribute, value string, metadata map[string]string) (*Entry, error) {
	if entity == "" {
		return nil, errEmptyEntity
	}
	if attribute == "" {
		return nil, errEmptyAttribute
	}

	key := compositeKey(entity, attribute)
	if existing, ok := e.entries[key]; ok {
		existing.Value = value
		existing.Metadata = metadata
		existing.Version++
		return existing, nil
	}

	// TrackKey's error return only signals empty key or an exact
	// duplicate, neither reachable here: key is non-empty and this
	// branch only runs for keys not yet in e.entries.
	_ = e.tracker.TrackKey(key, hash.ID(key))

	entry := &Entry{
		ID:        e.nextID,
		Entity:    entity,
		Attribute: attribute,
		Value:     value,
		Metadata:  metadata,
		Version:   1,
	}
	e.nextID++
	e.entries[key] = entry
	return entry, nil
}

// Remove deletes the entry for (entity, attribute), reporting whether
// it existed.
func (e *Engine) Remove(entity, attribute string) bool {
	key := compositeKey(entity, attribute)
	if _, ok := e.entries[key]; !ok {
		return false
	}
	delete(e.entries, key)
	return true
}

// Get looks up the exact entry for (entity, attribute).
func (e *Engine) Get(entity, attribute string) (Entry, bool) {
	entry, ok := e.entries[compositeKey(entity, attribute)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// QueryByEntityPrefix returns every entry whose entity starts with
// prefix, sorted by (entity, attribute, id), clamped to limit. A
// negative limit is unlimited; a zero limit returns no entries.
func (e *Engine) QueryByEntityPrefix(prefix string, limit int) []Entry {
	if limit == 0 {
		return nil
	}

	matches := make([]Entry, 0)
	for _, entry := range e.entries {
		if strings.HasPrefix(entry.Entity, prefix) {
			matches = append(matches, *entry)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Entity != matches[j].Entity {
			return matches[i].Entity < matches[j].Entity
		}
		if matches[i].Attribute != matches[j].Attribute {
			return matches[i].Attribute < matches[j].Attribute
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// StageUpsert queues an upsert mutation, invisible until CommitStaged.
func (e *Engine) StageUpsert(entity, attribute, value string, metadata map[string]string) error {
	if entity == "" {
		return errEmptyEntity
	}
	if attribute == "" {
		return errEmptyAttribute
	}
	e.staged = append(e.staged, stagedMutation{
		kind: mutationUpsert, entity: entity, attribute: attribute, value: value, metadata: metadata,
	})
	return nil
}

// StageRemove queues a remove mutation.
func (e *Engine) StageRemove(entity, attribute string) {
	e.staged = append(e.staged, stagedMutation{kind: mutationRemove, entity: entity, attribute: attribute})
}

// PendingMutationCount returns the number of staged, uncommitted
// mutations.
func (e *Engine) PendingMutationCount() int {
	return len(e.staged)
}

// CommitStaged applies every staged mutation in insertion order, so a
// later mutation on the same (entity, attribute) wins, then clears the
// staging buffer.
func (e *Engine) CommitStaged() error {
	for _, m := range e.staged {
		switch m.kind {
		case mutationUpsert:
			if _, err := e.upsert(m.entity, m.attribute, m.value, m.metadata); err != nil {
				return err
			}
		case mutationRemove:
			e.Remove(m.entity, m.attribute)
		}
	}
	e.staged = nil
	return nil
}

// RollbackStaged discards every staged mutation without applying it.
func (e *Engine) RollbackStaged() {
	e.staged = nil
}
