package waxfmt

import "encoding/binary"

// Frame is a content-addressed, immutable record as defined in
type Frame struct {
	ID                uint32
	PayloadOffset      uint64
	PayloadLength      uint64
	PayloadChecksum    [ChecksumSize]byte
	CanonicalEncoding  CanonicalEncoding
	CanonicalLength    uint64
	HasCanonicalLength bool
	StoredChecksum     [ChecksumSize]byte
	HasStoredChecksum  bool
	Status             FrameStatus
	Supersedes         uint32
	HasSupersedes      bool
	SupersededBy       uint32
	HasSupersededBy    bool
}

// FrameEntrySize is the fixed on-disk size of one TOC frame entry.
const FrameEntrySize = 4 + 8 + 8 + ChecksumSize + 1 + 1 + 8 + 1 + ChecksumSize + 1 + 1 + 4 + 1 + 4

// Validate checks the structural invariants a decoded Frame must satisfy
// and the decode failure modes that are frame-local.
func (f *Frame) Validate() error {
	if !f.CanonicalEncoding.Valid() {
		return decodeErr(ErrKindInvalidEnum, "canonical_encoding")
	}
	if !f.Status.Valid() {
		return decodeErr(ErrKindInvalidEnum, "status")
	}
	if f.CanonicalEncoding != CanonicalPlain && !f.HasCanonicalLength {
		return decodeErr(ErrKindMissingCanonicalLength, "frame")
	}
	if f.PayloadLength > 0 && !f.HasStoredChecksum {
		return decodeErr(ErrKindMissingStoredChecksum, "frame")
	}
	return nil
}

func putOptTag(b []byte, present bool) {
	if present {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

func readOptTag(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErr(ErrKindInvalidOptionalTag, "optional tag")
	}
}

// encode appends the entry to buf and returns the new slice.
func (f *Frame) encode(buf []byte) []byte {
	var tmp [FrameEntrySize]byte
	b := tmp[:0]
	var u32b [4]byte
	var u64b [8]byte

	binary.LittleEndian.PutUint32(u32b[:], f.ID)
	b = append(b, u32b[:]...)

	binary.LittleEndian.PutUint64(u64b[:], f.PayloadOffset)
	b = append(b, u64b[:]...)
	binary.LittleEndian.PutUint64(u64b[:], f.PayloadLength)
	b = append(b, u64b[:]...)

	b = append(b, f.PayloadChecksum[:]...)
	b = append(b, byte(f.CanonicalEncoding))

	tagByte := [1]byte{}
	putOptTag(tagByte[:], f.HasCanonicalLength)
	b = append(b, tagByte[0])
	binary.LittleEndian.PutUint64(u64b[:], f.CanonicalLength)
	b = append(b, u64b[:]...)

	putOptTag(tagByte[:], f.HasStoredChecksum)
	b = append(b, tagByte[0])
	b = append(b, f.StoredChecksum[:]...)

	b = append(b, byte(f.Status))

	putOptTag(tagByte[:], f.HasSupersedes)
	b = append(b, tagByte[0])
	binary.LittleEndian.PutUint32(u32b[:], f.Supersedes)
	b = append(b, u32b[:]...)

	putOptTag(tagByte[:], f.HasSupersededBy)
	b = append(b, tagByte[0])
	binary.LittleEndian.PutUint32(u32b[:], f.SupersededBy)
	b = append(b, u32b[:]...)

	return append(buf, b...)
}

// decodeFrame parses one frame entry from the front of data, returning
// the parsed Frame and the remaining bytes.
func decodeFrame(data []byte) (Frame, []byte, error) {
	if len(data) < FrameEntrySize {
		return Frame{}, nil, decodeErr(ErrKindTruncated, "frame entry")
	}

	var f Frame
	p := data

	f.ID = binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]
	f.PayloadOffset = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	f.PayloadLength = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	copy(f.PayloadChecksum[:], p[0:ChecksumSize])
	p = p[ChecksumSize:]
	f.CanonicalEncoding = CanonicalEncoding(p[0])
	p = p[1:]

	present, err := readOptTag(p[0])
	if err != nil {
		return Frame{}, nil, err
	}
	f.HasCanonicalLength = present
	p = p[1:]
	f.CanonicalLength = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]

	present, err = readOptTag(p[0])
	if err != nil {
		return Frame{}, nil, err
	}
	f.HasStoredChecksum = present
	p = p[1:]
	copy(f.StoredChecksum[:], p[0:ChecksumSize])
	p = p[ChecksumSize:]

	f.Status = FrameStatus(p[0])
	p = p[1:]

	present, err = readOptTag(p[0])
	if err != nil {
		return Frame{}, nil, err
	}
	f.HasSupersedes = present
	p = p[1:]
	f.Supersedes = binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]

	present, err = readOptTag(p[0])
	if err != nil {
		return Frame{}, nil, err
	}
	f.HasSupersededBy = present
	p = p[1:]
	f.SupersededBy = binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]

	if err := f.Validate(); err != nil {
		return Frame{}, nil, err
	}

	return f, p, nil
}

// Segment is a disjoint byte range holding an auxiliary index, as
// defined in
type Segment struct {
	ID          uint32
	BytesOffset uint64
	BytesLength uint64
	Checksum    [ChecksumSize]byte
	Compression CompressionType
	Kind        SegmentKind
}

// SegmentEntrySize is the fixed on-disk size of one TOC segment entry.
const SegmentEntrySize = 4 + 8 + 8 + ChecksumSize + 1 + 1

func (s *Segment) encode(buf []byte) []byte {
	var u32b [4]byte
	var u64b [8]byte

	binary.LittleEndian.PutUint32(u32b[:], s.ID)
	buf = append(buf, u32b[:]...)
	binary.LittleEndian.PutUint64(u64b[:], s.BytesOffset)
	buf = append(buf, u64b[:]...)
	binary.LittleEndian.PutUint64(u64b[:], s.BytesLength)
	buf = append(buf, u64b[:]...)
	buf = append(buf, s.Checksum[:]...)
	buf = append(buf, byte(s.Compression))
	buf = append(buf, byte(s.Kind))

	return buf
}

func decodeSegment(data []byte) (Segment, []byte, error) {
	if len(data) < SegmentEntrySize {
		return Segment{}, nil, decodeErr(ErrKindTruncated, "segment entry")
	}

	var s Segment
	p := data

	s.ID = binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]
	s.BytesOffset = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	s.BytesLength = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	copy(s.Checksum[:], p[0:ChecksumSize])
	p = p[ChecksumSize:]
	s.Compression = CompressionType(p[0])
	p = p[1:]
	s.Kind = SegmentKind(p[0])
	p = p[1:]

	if !s.Compression.Valid() {
		return Segment{}, nil, decodeErr(ErrKindInvalidEnum, "segment.compression")
	}
	if !s.Kind.Valid() {
		return Segment{}, nil, decodeErr(ErrKindInvalidEnum, "segment.kind")
	}

	return s, p, nil
}

// IndexManifest points the TOC at the segment holding a particular
// auxiliary index (lex, vec, or time).
type IndexManifest struct {
	SegmentID   uint32
	BytesOffset uint64
	BytesLength uint64
	Checksum    [ChecksumSize]byte
}

const indexManifestSize = 4 + 8 + 8 + ChecksumSize

func (m *IndexManifest) encode(buf []byte) []byte {
	var u32b [4]byte
	var u64b [8]byte

	binary.LittleEndian.PutUint32(u32b[:], m.SegmentID)
	buf = append(buf, u32b[:]...)
	binary.LittleEndian.PutUint64(u64b[:], m.BytesOffset)
	buf = append(buf, u64b[:]...)
	binary.LittleEndian.PutUint64(u64b[:], m.BytesLength)
	buf = append(buf, u64b[:]...)
	buf = append(buf, m.Checksum[:]...)

	return buf
}

func decodeIndexManifest(data []byte) (IndexManifest, []byte, error) {
	if len(data) < indexManifestSize {
		return IndexManifest{}, nil, decodeErr(ErrKindTruncated, "index manifest")
	}

	var m IndexManifest
	p := data

	m.SegmentID = binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]
	m.BytesOffset = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	m.BytesLength = binary.LittleEndian.Uint64(p[0:8])
	p = p[8:]
	copy(m.Checksum[:], p[0:ChecksumSize])
	p = p[ChecksumSize:]

	return m, p, nil
}

// MatchesSegment reports whether the manifest's offset/length/checksum
// agree with the given segment.
func (m IndexManifest) MatchesSegment(s Segment) bool {
	return m.BytesOffset == s.BytesOffset && m.BytesLength == s.BytesLength && m.Checksum == s.Checksum
}
