package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

var errFactTruncated = errors.New("memory: truncated fact payload")

// factSentinel marks a frame's content as a RememberFact payload rather
// than ordinary ingested content. asks for facts to live
// "under a reserved id space distinguishable from content frames"; frame
// ids must stay dense across the whole store,
// so this package distinguishes them by content tag instead of by id
// range, and recovers that distinction at warm start by re-reading
// every frame's payload.
var factSentinel = []byte{0x00, 'W', 'A', 'X', 'F', 'A', 'C', 'T', 0x00}

// encodeFact renders a structured-memory fact as frame content: the
// sentinel followed by length-prefixed entity/attribute/value/metadata
// fields, mirroring structmem's own Serialize encoding.
func encodeFact(entity, attribute, value string, metadata map[string]string) []byte {
	buf := append([]byte(nil), factSentinel...)
	buf = appendFactString(buf, entity)
	buf = appendFactString(buf, attribute)
	buf = appendFactString(buf, value)
	buf = appendFactU32(buf, uint32(len(metadata)))

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = appendFactString(buf, k)
		buf = appendFactString(buf, metadata[k])
	}
	return buf
}

// decodeFact reports whether content is a RememberFact payload and, if
// so, decodes its fields. A malformed sentinel-prefixed payload is
// treated as not a fact rather than an error, since warm start must
// tolerate a frame written by a future format revision.
func decodeFact(content []byte) (entity, attribute, value string, metadata map[string]string, ok bool) {
	if len(content) < len(factSentinel) || !bytes.Equal(content[:len(factSentinel)], factSentinel) {
		return "", "", "", nil, false
	}
	data := content[len(factSentinel):]

	var err error
	entity, data, err = readFactString(data)
	if err != nil {
		return "", "", "", nil, false
	}
	attribute, data, err = readFactString(data)
	if err != nil {
		return "", "", "", nil, false
	}
	value, data, err = readFactString(data)
	if err != nil {
		return "", "", "", nil, false
	}

	var metaCount uint32
	metaCount, data, err = readFactU32(data)
	if err != nil {
		return "", "", "", nil, false
	}
	if metaCount > 0 {
		metadata = make(map[string]string, metaCount)
		for i := uint32(0); i < metaCount; i++ {
			var k, v string
			k, data, err = readFactString(data)
			if err != nil {
				return "", "", "", nil, false
			}
			v, data, err = readFactString(data)
			if err != nil {
				return "", "", "", nil, false
			}
			metadata[k] = v
		}
	}
	return entity, attribute, value, metadata, true
}

// factKey is the composite lookup key memory uses to map a structured
// fact back to the frame id that carries it.
func factKey(entity, attribute string) string {
	return entity + "\x00" + attribute
}

// renderFactSearchText is the "entity attribute value" text
// RememberFact stages into the text index.
func renderFactSearchText(entity, attribute, value string) string {
	return entity + " " + attribute + " " + value
}

func appendFactU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendFactString(buf []byte, s string) []byte {
	buf = appendFactU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readFactU32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errFactTruncated
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}

func readFactString(data []byte) (string, []byte, error) {
	n, data, err := readFactU32(data)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(data)) < n {
		return "", nil, errFactTruncated
	}
	return string(data[:n]), data[n:], nil
}
