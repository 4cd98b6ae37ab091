// Package collision detects xxHash64 collisions between the composite
// (entity, attribute) keys structmem hashes for its secondary index, so
// a colliding key falls back to exact string comparison instead of
// silently shadowing an unrelated entry.
package collision

// Tracker tracks structured-memory index keys and detects hash
// collisions during indexing. It maintains a hash-to-key mapping and
// an ordered list of keys for diagnostics when a collision occurs.
type Tracker struct {
	keys         map[uint64]string // hash -> key mapping for collision detection
	keysList     []string          // ordered list, insertion order
	hasCollision bool
}

// NewTracker creates a new, empty key tracker.
func NewTracker() *Tracker {
	return &Tracker{
		keys:     make(map[uint64]string),
		keysList: make([]string, 0),
	}
}

// TrackHash tracks a hash computed without its source key (used when a
// caller already holds a hash and has discarded the key). Returns
// ErrHashCollision if the hash was already claimed, since there is no
// key available to tell the two apart.
func (t *Tracker) TrackHash(hash uint64) error {
	if _, exists := t.keys[hash]; exists {
		return ErrHashCollision
	}
	t.keys[hash] = ""
	return nil
}

// TrackKey tracks key under its hash. Returns ErrInvalidKey for an
// empty key, ErrKeyAlreadyTracked if key was already tracked under the
// same hash. A different key landing on the same hash is not an
// error: HasCollision is set and both keys are kept in GetKeys so the
// caller can fall back to linear, exact-match scanning for that hash.
func (t *Tracker) TrackKey(key string, hash uint64) error {
	if key == "" {
		return ErrInvalidKey
	}

	if existing, exists := t.keys[hash]; exists {
		if existing == key {
			return ErrKeyAlreadyTracked
		}
		t.hasCollision = true
	}

	t.keys[hash] = key
	t.keysList = append(t.keysList, key)
	return nil
}

// HasCollision reports whether any two distinct keys have hashed to
// the same value.
func (t *Tracker) HasCollision() bool {
	return t.hasCollision
}

// GetKeys returns every tracked key in the order TrackKey was called.
func (t *Tracker) GetKeys() []string {
	return t.keysList
}

// Count returns the number of tracked keys.
func (t *Tracker) Count() int {
	return len(t.keysList)
}

// Reset clears all tracked keys and the collision flag, preserving
// capacity so the tracker can be reused.
func (t *Tracker) Reset() {
	for k := range t.keys {
		delete(t.keys, k)
	}
	t.keysList = t.keysList[:0]
	t.hasCollision = false
}
