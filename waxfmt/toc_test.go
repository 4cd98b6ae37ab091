package waxfmt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waxmem/wax/digest"
)

func sampleFrame(id uint32, offset, length uint64) Frame {
	return Frame{
		ID:                id,
		PayloadOffset:     offset,
		PayloadLength:     length,
		PayloadChecksum:   [ChecksumSize]byte{byte(id), 1, 2},
		CanonicalEncoding: CanonicalPlain,
		StoredChecksum:    [ChecksumSize]byte{byte(id), 1, 2},
		HasStoredChecksum: length > 0,
		Status:            FrameLive,
	}
}

func TestTOC_RoundTrip_EmptyTOC(t *testing.T) {
	buf := EncodeEmptyTOC()
	got, err := DecodeTOC(buf)
	require.NoError(t, err)
	require.Empty(t, got.Frames)
	require.Empty(t, got.Segments)
	require.Nil(t, got.LexManifest)
}

func TestTOC_RoundTrip_FramesAndSegments(t *testing.T) {
	toc := TOC{
		Frames: []Frame{
			sampleFrame(0, 1000, 10),
			sampleFrame(1, 1010, 20),
		},
		Segments: []Segment{
			{ID: 0, BytesOffset: 1030, BytesLength: 64, Checksum: [ChecksumSize]byte{5}, Compression: CompressionZstd, Kind: SegmentLex},
		},
		LexManifest: &IndexManifest{SegmentID: 0, BytesOffset: 1030, BytesLength: 64, Checksum: [ChecksumSize]byte{5}},
		Ticket:      []byte("ticket-bytes"),
	}

	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	got, err := DecodeTOC(buf)
	require.NoError(t, err)
	require.Equal(t, toc.Frames, got.Frames)
	require.Equal(t, toc.Segments, got.Segments)
	require.Equal(t, toc.Ticket, got.Ticket)
	require.NotNil(t, got.LexManifest)
	require.Equal(t, *toc.LexManifest, *got.LexManifest)
}

func TestTOC_ChecksumMismatchOnBitFlip(t *testing.T) {
	toc := TOC{Frames: []Frame{sampleFrame(0, 0, 0)}}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	buf[10] ^= 0x01

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindChecksumMismatch)))
}

func TestTOC_NonDenseFrameIDsRejected(t *testing.T) {
	toc := TOC{Frames: []Frame{sampleFrame(0, 0, 0), sampleFrame(5, 0, 0)}}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindNonDenseFrameIDs)))
}

func TestTOC_OverlappingFrameRangesRejected(t *testing.T) {
	toc := TOC{Frames: []Frame{
		sampleFrame(0, 100, 50),
		sampleFrame(1, 120, 50), // overlaps [100,150) with frame 0
	}}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindSegmentRangeOverlap)))
}

func TestTOC_FrameSegmentCrossOverlapRejected(t *testing.T) {
	toc := TOC{
		Frames: []Frame{sampleFrame(0, 100, 50)},
		Segments: []Segment{
			{ID: 0, BytesOffset: 120, BytesLength: 10, Compression: CompressionNone, Kind: SegmentLex},
		},
	}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindSegmentRangeOverlap)))
}

func TestTOC_ManifestWithoutMatchingSegmentRejected(t *testing.T) {
	toc := TOC{
		Segments: []Segment{
			{ID: 0, BytesOffset: 10, BytesLength: 20, Checksum: [ChecksumSize]byte{1}, Kind: SegmentLex},
		},
		LexManifest: &IndexManifest{SegmentID: 0, BytesOffset: 10, BytesLength: 21, Checksum: [ChecksumSize]byte{1}},
	}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindManifestWithoutSegment)))
}

func TestTOC_UnsupportedExtensionTagRejected(t *testing.T) {
	toc := TOC{Extensions: []ExtensionTag{{Tag: 0xBEEF, Data: []byte("x")}}}
	buf, err := EncodeTOC(toc)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindUnsupportedExtensionTag)))
}

func TestTOC_DuplicateExtensionTagRejected(t *testing.T) {
	dup := TOC{Extensions: []ExtensionTag{
		{Tag: ExtEmbeddingJournal, Data: EncodeEmbeddingJournal(nil)},
		{Tag: ExtEmbeddingJournal, Data: EncodeEmbeddingJournal(nil)},
	}}
	buf, err := EncodeTOC(dup)
	require.NoError(t, err)

	_, err = DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindDuplicateMapKey)))
}

func TestTOC_ExcessTrailingBytesRejected(t *testing.T) {
	valid := EncodeEmptyTOC()
	body := append([]byte{}, valid[:len(valid)-ChecksumSize]...)
	body = append(body, 0xFF) // garbage after the merkle root, inside the checksummed region

	zero := make([]byte, ChecksumSize)
	sum := digest.Sum(append(append([]byte{}, body...), zero...))
	buf := append(body, sum[:]...)

	_, err := DecodeTOC(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindExcessTrailingBytes)))
}

func TestFrame_Validate_MissingCanonicalLength(t *testing.T) {
	f := Frame{CanonicalEncoding: CanonicalReserved1, Status: FrameLive}
	err := f.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindMissingCanonicalLength)))
}

func TestFrame_Validate_MissingStoredChecksum(t *testing.T) {
	f := Frame{CanonicalEncoding: CanonicalPlain, Status: FrameLive, PayloadLength: 10}
	err := f.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, KindSentinel(ErrKindMissingStoredChecksum)))
}
