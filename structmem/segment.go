package structmem

import (
	"encoding/binary"
	"sort"

	"github.com/waxmem/wax/internal/collision"
	"github.com/waxmem/wax/internal/hash"
)

// Serialize encodes every entry as the little-endian list of entries
// describes for structured-memory persistence: a u32 count
// followed by, per entry, id/version (u32 each) and length-prefixed
// entity/attribute/value strings and metadata map. Entries are written
// in ascending id order so a reload is deterministic.
func (e *Engine) Serialize() []byte {
	ids := make([]uint32, 0, len(e.entries))
	for _, entry := range e.entries {
		ids = append(ids, entry.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	byID := make(map[uint32]*Entry, len(e.entries))
	for _, entry := range e.entries {
		byID[entry.ID] = entry
	}

	buf := make([]byte, 0, 64*len(ids))
	buf = appendU32(buf, uint32(len(ids)))
	for _, id := range ids {
		entry := byID[id]
		buf = appendU32(buf, entry.ID)
		buf = appendU32(buf, entry.Version)
		buf = appendString(buf, entry.Entity)
		buf = appendString(buf, entry.Attribute)
		buf = appendString(buf, entry.Value)
		buf = appendU32(buf, uint32(len(entry.Metadata)))
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = appendString(buf, k)
			buf = appendString(buf, entry.Metadata[k])
		}
	}
	return buf
}

// Load replaces the engine's contents with the entries decoded from a
// Serialize blob. Any staged mutations and the nextID counter are reset
// to reflect the loaded snapshot.
func (e *Engine) Load(data []byte) error {
	count, data, err := readU32(data)
	if err != nil {
		return err
	}

	entries := make(map[string]*Entry, count)
	nextID := uint32(1)
	for i := uint32(0); i < count; i++ {
		var id, version uint32
		var entity, attribute, value string

		id, data, err = readU32(data)
		if err != nil {
			return err
		}
		version, data, err = readU32(data)
		if err != nil {
			return err
		}
		entity, data, err = readString(data)
		if err != nil {
			return err
		}
		attribute, data, err = readString(data)
		if err != nil {
			return err
		}
		value, data, err = readString(data)
		if err != nil {
			return err
		}

		var metaCount uint32
		metaCount, data, err = readU32(data)
		if err != nil {
			return err
		}
		var metadata map[string]string
		if metaCount > 0 {
			metadata = make(map[string]string, metaCount)
			for j := uint32(0); j < metaCount; j++ {
				var k, v string
				k, data, err = readString(data)
				if err != nil {
					return err
				}
				v, data, err = readString(data)
				if err != nil {
					return err
				}
				metadata[k] = v
			}
		}

		entries[compositeKey(entity, attribute)] = &Entry{
			ID:        id,
			Entity:    entity,
			Attribute: attribute,
			Value:     value,
			Metadata:  metadata,
			Version:   version,
		}
		if id >= nextID {
			nextID = id + 1
		}
	}
	if len(data) != 0 {
		return errTrailingBytes
	}

	tracker := collision.NewTracker()
	for key := range entries {
		_ = tracker.TrackKey(key, hash.ID(key))
	}

	e.entries = entries
	e.tracker = tracker
	e.staged = nil
	e.nextID = nextID
	return nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readU32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errTruncated
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}

func readString(data []byte) (string, []byte, error) {
	n, data, err := readU32(data)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(data)) < n {
		return "", nil, errTruncated
	}
	return string(data[:n]), data[n:], nil
}
