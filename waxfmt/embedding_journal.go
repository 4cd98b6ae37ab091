package waxfmt

import (
	"encoding/binary"
	"math"
)

// EmbeddingEntry is one row of the embedding journal extension: the most
// recently committed embedding for a frame, kept alongside (rather than
// inside) the frame TOC entry so a vector segment can be rebuilt without
// re-embedding.
type EmbeddingEntry struct {
	FrameID   uint32
	Dimension uint32
	Vector    []float32
}

// EncodeEmbeddingJournal serializes entries in the given order into the
// blob stored under the ExtEmbeddingJournal extension tag.
func EncodeEmbeddingJournal(entries []EmbeddingEntry) []byte {
	buf := make([]byte, 0, 4+len(entries)*12)
	var u32b [4]byte

	binary.LittleEndian.PutUint32(u32b[:], uint32(len(entries)))
	buf = append(buf, u32b[:]...)

	for _, e := range entries {
		binary.LittleEndian.PutUint32(u32b[:], e.FrameID)
		buf = append(buf, u32b[:]...)
		binary.LittleEndian.PutUint32(u32b[:], e.Dimension)
		buf = append(buf, u32b[:]...)
		for _, f := range e.Vector {
			var fb [4]byte
			binary.LittleEndian.PutUint32(fb[:], math.Float32bits(f))
			buf = append(buf, fb[:]...)
		}
	}
	return buf
}

// DecodeEmbeddingJournal parses an embedding journal blob as produced by
// EncodeEmbeddingJournal.
func DecodeEmbeddingJournal(data []byte) ([]EmbeddingEntry, error) {
	if len(data) < 4 {
		return nil, decodeErr(ErrKindTruncated, "embedding journal count")
	}
	count := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if count > MaxArrayCount {
		return nil, decodeErr(ErrKindArrayCountOverflow, "embedding journal count")
	}

	entries := make([]EmbeddingEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 8 {
			return nil, decodeErr(ErrKindTruncated, "embedding journal entry header")
		}
		frameID := binary.LittleEndian.Uint32(data[0:4])
		dim := binary.LittleEndian.Uint32(data[4:8])
		data = data[8:]
		if dim > MaxArrayCount {
			return nil, decodeErr(ErrKindArrayCountOverflow, "embedding journal dimension")
		}
		floatBytes := int(dim) * 4
		if len(data) < floatBytes {
			return nil, decodeErr(ErrKindTruncated, "embedding journal vector")
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
			data = data[4:]
		}
		entries = append(entries, EmbeddingEntry{FrameID: frameID, Dimension: dim, Vector: vec})
	}

	if len(data) != 0 {
		return nil, decodeErr(ErrKindExcessTrailingBytes, "embedding journal")
	}
	return entries, nil
}
