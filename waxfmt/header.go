package waxfmt

import (
	"encoding/binary"

	"github.com/waxmem/wax/digest"
)

// ReplaySnapshot lets Open skip a full WAL scan when it matches the
// chosen footer exactly.
type ReplaySnapshot struct {
	Generation      uint64
	CommittedSeq    uint64
	FooterOffset    uint64
	WritePos        uint64
	CheckpointPos   uint64
	PendingBytes    uint64
	LastSequence    uint64
	Valid           bool
}

// HeaderPage is one of the two redundant 4096-byte header pages
//.
type HeaderPage struct {
	FormatVersion       uint16
	VersionMajor        uint8
	VersionMinor        uint8
	HeaderPageGeneration uint64
	FileGeneration      uint64
	FooterOffset        uint64
	WALOffset           uint64
	WALSize             uint64
	WALWritePos         uint64
	WALCheckpointPos    uint64
	WALCommittedSeq     uint64
	TOCChecksum         [ChecksumSize]byte

	HasSnapshot bool
	Snapshot    ReplaySnapshot
}

// EncodeHeaderPage serializes h into an exact HeaderPageSize buffer.
func EncodeHeaderPage(h HeaderPage) []byte {
	buf := make([]byte, HeaderPageSize)

	copy(buf[0:4], MagicHeaderPage[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.FormatVersion)
	buf[6] = h.VersionMajor
	buf[7] = h.VersionMinor
	binary.LittleEndian.PutUint64(buf[8:16], h.HeaderPageGeneration)
	binary.LittleEndian.PutUint64(buf[16:24], h.FileGeneration)
	binary.LittleEndian.PutUint64(buf[24:32], h.FooterOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.WALOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.WALSize)
	binary.LittleEndian.PutUint64(buf[48:56], h.WALWritePos)
	binary.LittleEndian.PutUint64(buf[56:64], h.WALCheckpointPos)
	binary.LittleEndian.PutUint64(buf[64:72], h.WALCommittedSeq)
	copy(buf[72:72+ChecksumSize], h.TOCChecksum[:])

	off := 72 + ChecksumSize
	selfChecksumOff := off
	off += ChecksumSize // self-checksum slot, filled below

	if h.HasSnapshot {
		buf[off] = 1
		off++
		copy(buf[off:off+8], MagicReplaySnap[:])
		off += 8
		off = putU64(buf, off, h.Snapshot.Generation)
		off = putU64(buf, off, h.Snapshot.CommittedSeq)
		off = putU64(buf, off, h.Snapshot.FooterOffset)
		off = putU64(buf, off, h.Snapshot.WritePos)
		off = putU64(buf, off, h.Snapshot.CheckpointPos)
		off = putU64(buf, off, h.Snapshot.PendingBytes)
		off = putU64(buf, off, h.Snapshot.LastSequence)
		if h.Snapshot.Valid {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
	} else {
		buf[off] = 0
		off++
	}

	sum := digest.Sum(buf)
	copy(buf[selfChecksumOff:selfChecksumOff+ChecksumSize], sum[:])

	return buf
}

func putU64(buf []byte, off int, v uint64) int {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
	return off + 8
}

func getU64(buf []byte, off int) (uint64, int) {
	return binary.LittleEndian.Uint64(buf[off : off+8]), off + 8
}

// DecodeHeaderPage parses and checksum-verifies a HeaderPageSize buffer.
func DecodeHeaderPage(buf []byte) (HeaderPage, error) {
	if len(buf) != HeaderPageSize {
		return HeaderPage{}, errFormatf("decode_header_page", decodeErr(ErrKindTruncated, "header page size"))
	}
	if !bytesEqual(buf[0:4], MagicHeaderPage[:]) {
		return HeaderPage{}, errFormatf("decode_header_page", decodeErr(ErrKindWrongMagic, "header page"))
	}

	var h HeaderPage
	h.FormatVersion = binary.LittleEndian.Uint16(buf[4:6])
	h.VersionMajor = buf[6]
	h.VersionMinor = buf[7]
	if h.VersionMajor != FormatVersionMajor {
		return HeaderPage{}, errFormatf("decode_header_page", decodeErr(ErrKindWrongVersion, "header page major version"))
	}

	h.HeaderPageGeneration = binary.LittleEndian.Uint64(buf[8:16])
	h.FileGeneration = binary.LittleEndian.Uint64(buf[16:24])
	h.FooterOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.WALOffset = binary.LittleEndian.Uint64(buf[32:40])
	h.WALSize = binary.LittleEndian.Uint64(buf[40:48])
	h.WALWritePos = binary.LittleEndian.Uint64(buf[48:56])
	h.WALCheckpointPos = binary.LittleEndian.Uint64(buf[56:64])
	h.WALCommittedSeq = binary.LittleEndian.Uint64(buf[64:72])
	copy(h.TOCChecksum[:], buf[72:72+ChecksumSize])

	selfChecksumOff := 72 + ChecksumSize
	var storedSum [ChecksumSize]byte
	copy(storedSum[:], buf[selfChecksumOff:selfChecksumOff+ChecksumSize])

	verifyBuf := make([]byte, len(buf))
	copy(verifyBuf, buf)
	zero := make([]byte, ChecksumSize)
	copy(verifyBuf[selfChecksumOff:selfChecksumOff+ChecksumSize], zero)
	gotSum := digest.Sum(verifyBuf)
	if gotSum != storedSum {
		return HeaderPage{}, errFormatf("decode_header_page", decodeErr(ErrKindChecksumMismatch, "header page"))
	}

	off := selfChecksumOff + ChecksumSize
	present, err := readOptTag(buf[off])
	if err != nil {
		return HeaderPage{}, errFormatf("decode_header_page", err)
	}
	off++

	if present {
		if !bytesEqual(buf[off:off+8], MagicReplaySnap[:]) {
			return HeaderPage{}, errFormatf("decode_header_page", decodeErr(ErrKindWrongMagic, "replay snapshot"))
		}
		off += 8
		var snap ReplaySnapshot
		snap.Generation, off = getU64(buf, off)
		snap.CommittedSeq, off = getU64(buf, off)
		snap.FooterOffset, off = getU64(buf, off)
		snap.WritePos, off = getU64(buf, off)
		snap.CheckpointPos, off = getU64(buf, off)
		snap.PendingBytes, off = getU64(buf, off)
		snap.LastSequence, off = getU64(buf, off)
		snap.Valid = buf[off] == 1
		h.HasSnapshot = true
		h.Snapshot = snap
	}

	return h, nil
}

// Footer is the trailing fixed-size record recording the generation
//.
type Footer struct {
	TOCLen           uint64
	TOCHash          [ChecksumSize]byte
	Generation       uint64
	WALCommittedSeq  uint64
}

// EncodeFooter serializes f into an exact FooterSize buffer.
func EncodeFooter(f Footer) []byte {
	buf := make([]byte, FooterSize)
	copy(buf[0:8], MagicFooter[:])
	binary.LittleEndian.PutUint64(buf[8:16], f.TOCLen)
	copy(buf[16:16+ChecksumSize], f.TOCHash[:])
	off := 16 + ChecksumSize
	binary.LittleEndian.PutUint64(buf[off:off+8], f.Generation)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], f.WALCommittedSeq)
	off += 8
	// buf is exactly FooterSize by construction (8+8+32+8+8=64).
	_ = off
	return buf
}

// DecodeFooter parses a FooterSize buffer.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterSize {
		return Footer{}, errFormatf("decode_footer", decodeErr(ErrKindTruncated, "footer size"))
	}
	if !bytesEqual(buf[0:8], MagicFooter[:]) {
		return Footer{}, errFormatf("decode_footer", decodeErr(ErrKindWrongMagic, "footer"))
	}

	var f Footer
	f.TOCLen = binary.LittleEndian.Uint64(buf[8:16])
	copy(f.TOCHash[:], buf[16:16+ChecksumSize])
	off := 16 + ChecksumSize
	f.Generation = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	f.WALCommittedSeq = binary.LittleEndian.Uint64(buf[off : off+8])

	return f, nil
}
