package waxfmt

import (
	"encoding/binary"

	"github.com/waxmem/wax/digest"
)

// ExtensionTag is a single (tag, blob) pair appended to the TOC. Only
// tags this implementation recognizes (see ExtEmbeddingJournal) may
// appear; anything else is a decode error.
type ExtensionTag struct {
	Tag  uint16
	Data []byte
}

// TOC is the self-describing, checksummed list of frames and segments
// appended near the end of the file.
type TOC struct {
	Frames   []Frame
	Segments []Segment

	LexManifest  *IndexManifest
	VecManifest  *IndexManifest
	TimeManifest *IndexManifest

	Ticket     []byte
	Extensions []ExtensionTag

	MerkleRoot [ChecksumSize]byte
}

// EncodeTOC serializes toc, computing and appending the trailing
// self-checksum.
func EncodeTOC(toc TOC) ([]byte, error) {
	if len(toc.Frames) > MaxArrayCount || len(toc.Segments) > MaxArrayCount {
		return nil, errFormatf("encode_toc", decodeErr(ErrKindArrayCountOverflow, "toc"))
	}

	buf := make([]byte, 0, 4096)

	var u32b [4]byte

	binary.LittleEndian.PutUint32(u32b[:], uint32(len(toc.Frames)))
	buf = append(buf, u32b[:]...)
	for i := range toc.Frames {
		buf = toc.Frames[i].encode(buf)
	}

	binary.LittleEndian.PutUint32(u32b[:], uint32(len(toc.Segments)))
	buf = append(buf, u32b[:]...)
	for i := range toc.Segments {
		buf = toc.Segments[i].encode(buf)
	}

	buf = encodeOptManifest(buf, toc.LexManifest)
	buf = encodeOptManifest(buf, toc.VecManifest)
	buf = encodeOptManifest(buf, toc.TimeManifest)

	buf = appendBlob(buf, toc.Ticket)

	if len(toc.Extensions) > MaxArrayCount {
		return nil, errFormatf("encode_toc", decodeErr(ErrKindArrayCountOverflow, "extensions"))
	}
	binary.LittleEndian.PutUint32(u32b[:], uint32(len(toc.Extensions)))
	buf = append(buf, u32b[:]...)
	for _, ext := range toc.Extensions {
		var u16b [2]byte
		binary.LittleEndian.PutUint16(u16b[:], ext.Tag)
		buf = append(buf, u16b[:]...)
		buf = appendBlob(buf, ext.Data)
	}

	buf = append(buf, toc.MerkleRoot[:]...)

	// Self-checksum: digest over all preceding bytes with a 32-byte zero
	// slot substituted at the tail.
	zero := make([]byte, ChecksumSize)
	sum := digest.Sum(append(append([]byte{}, buf...), zero...))
	buf = append(buf, sum[:]...)

	return buf, nil
}

// EncodeEmptyTOC returns the canonical encoding of a TOC with no frames
// or segments, used by store.Create.
func EncodeEmptyTOC() []byte {
	b, err := EncodeTOC(TOC{})
	if err != nil {
		panic("waxfmt: encoding an empty TOC must never fail: " + err.Error())
	}
	return b
}

func encodeOptManifest(buf []byte, m *IndexManifest) []byte {
	if m == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return m.encode(buf)
}

func decodeOptManifest(data []byte) (*IndexManifest, []byte, error) {
	if len(data) < 1 {
		return nil, nil, decodeErr(ErrKindTruncated, "manifest tag")
	}
	present, err := readOptTag(data[0])
	if err != nil {
		return nil, nil, err
	}
	data = data[1:]
	if !present {
		return nil, data, nil
	}
	m, rest, err := decodeIndexManifest(data)
	if err != nil {
		return nil, nil, err
	}
	return &m, rest, nil
}

func appendBlob(buf []byte, data []byte) []byte {
	var u32b [4]byte
	binary.LittleEndian.PutUint32(u32b[:], uint32(len(data)))
	buf = append(buf, u32b[:]...)
	return append(buf, data...)
}

func readBlob(data []byte, maxLen int) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, decodeErr(ErrKindTruncated, "blob length")
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if int(n) > maxLen {
		return nil, nil, decodeErr(ErrKindArrayCountOverflow, "blob length")
	}
	if len(data) < int(n) {
		return nil, nil, decodeErr(ErrKindTruncated, "blob data")
	}
	return data[:n:n], data[n:], nil
}

// DecodeTOC parses and verifies a TOC, including the structural checks
// named in: dense frame ids, no overlapping ranges,
// manifest-without-segment, and unsupported extension tags.
func DecodeTOC(data []byte) (TOC, error) {
	if len(data) < ChecksumSize {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "toc"))
	}

	body := data[:len(data)-ChecksumSize]
	wantSum := data[len(data)-ChecksumSize:]

	zero := make([]byte, ChecksumSize)
	gotSum := digest.Sum(append(append([]byte{}, body...), zero...))
	if !bytesEqual(gotSum[:], wantSum) {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindChecksumMismatch, "toc"))
	}

	p := body
	var toc TOC

	if len(p) < 4 {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "frame count"))
	}
	frameCount := binary.LittleEndian.Uint32(p)
	p = p[4:]
	if frameCount > MaxArrayCount {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindArrayCountOverflow, "frame count"))
	}

	toc.Frames = make([]Frame, 0, frameCount)
	for i := uint32(0); i < frameCount; i++ {
		var f Frame
		var err error
		f, p, err = decodeFrame(p)
		if err != nil {
			return TOC{}, errFormatf("decode_toc", err)
		}
		if f.ID != i {
			return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindNonDenseFrameIDs, "frame ids must be dense from 0"))
		}
		toc.Frames = append(toc.Frames, f)
	}

	if len(p) < 4 {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "segment count"))
	}
	segCount := binary.LittleEndian.Uint32(p)
	p = p[4:]
	if segCount > MaxArrayCount {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindArrayCountOverflow, "segment count"))
	}

	toc.Segments = make([]Segment, 0, segCount)
	var lastOffset uint64
	for i := uint32(0); i < segCount; i++ {
		var s Segment
		var err error
		s, p, err = decodeSegment(p)
		if err != nil {
			return TOC{}, errFormatf("decode_toc", err)
		}
		if i > 0 && s.BytesOffset <= lastOffset {
			return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindSegmentRangeOverlap, "segment offsets must strictly increase"))
		}
		lastOffset = s.BytesOffset
		toc.Segments = append(toc.Segments, s)
	}

	if err := checkNonOverlapping(toc); err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}

	var err error
	toc.LexManifest, p, err = decodeOptManifest(p)
	if err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}
	toc.VecManifest, p, err = decodeOptManifest(p)
	if err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}
	toc.TimeManifest, p, err = decodeOptManifest(p)
	if err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}

	if err := checkManifest(toc.LexManifest, toc.Segments, SegmentLex); err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}
	if err := checkManifest(toc.VecManifest, toc.Segments, SegmentVec); err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}
	if err := checkManifest(toc.TimeManifest, toc.Segments, SegmentTime); err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}

	toc.Ticket, p, err = readBlob(p, MaxBlobLen)
	if err != nil {
		return TOC{}, errFormatf("decode_toc", err)
	}

	if len(p) < 4 {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "extension count"))
	}
	extCount := binary.LittleEndian.Uint32(p)
	p = p[4:]
	if extCount > MaxArrayCount {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindArrayCountOverflow, "extension count"))
	}
	seenTags := make(map[uint16]struct{}, extCount)
	for i := uint32(0); i < extCount; i++ {
		if len(p) < 2 {
			return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "extension tag"))
		}
		tag := binary.LittleEndian.Uint16(p)
		p = p[2:]
		if _, dup := seenTags[tag]; dup {
			return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindDuplicateMapKey, "extension tag"))
		}
		seenTags[tag] = struct{}{}
		if tag != ExtEmbeddingJournal {
			return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindUnsupportedExtensionTag, "extension tag"))
		}
		var data []byte
		var derr error
		data, p, derr = readBlob(p, MaxBlobLen)
		if derr != nil {
			return TOC{}, errFormatf("decode_toc", derr)
		}
		toc.Extensions = append(toc.Extensions, ExtensionTag{Tag: tag, Data: data})
	}

	if len(p) < ChecksumSize {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindTruncated, "merkle root"))
	}
	copy(toc.MerkleRoot[:], p[:ChecksumSize])
	p = p[ChecksumSize:]

	if len(p) != 0 {
		return TOC{}, errFormatf("decode_toc", decodeErr(ErrKindExcessTrailingBytes, "toc"))
	}

	return toc, nil
}

func checkNonOverlapping(toc TOC) error {
	type rng struct{ start, end uint64 }
	var ranges []rng
	for _, f := range toc.Frames {
		if f.PayloadLength == 0 {
			continue
		}
		ranges = append(ranges, rng{f.PayloadOffset, f.PayloadOffset + f.PayloadLength})
	}
	for _, s := range toc.Segments {
		if s.BytesLength == 0 {
			continue
		}
		ranges = append(ranges, rng{s.BytesOffset, s.BytesOffset + s.BytesLength})
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].start < ranges[j].end && ranges[j].start < ranges[i].end {
				return decodeErr(ErrKindSegmentRangeOverlap, "overlapping frame/segment byte ranges")
			}
		}
	}
	return nil
}

func checkManifest(m *IndexManifest, segs []Segment, kind SegmentKind) error {
	if m == nil {
		return nil
	}
	for _, s := range segs {
		if s.ID == m.SegmentID && s.Kind == kind {
			if !m.MatchesSegment(s) {
				return decodeErr(ErrKindManifestWithoutSegment, kind.String()+" manifest does not match segment")
			}
			return nil
		}
	}
	return decodeErr(ErrKindManifestWithoutSegment, kind.String()+" manifest has no matching segment")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func errFormatf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &wrappedDecode{op: op, err: err}
}

// wrappedDecode lets callers errors.As into the underlying *DecodeError
// while still reporting which top-level operation failed.
type wrappedDecode struct {
	op  string
	err error
}

func (w *wrappedDecode) Error() string { return w.op + ": " + w.err.Error() }
func (w *wrappedDecode) Unwrap() error { return w.err }
