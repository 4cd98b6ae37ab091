package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/errs"
)

// RecordHeaderSize is the fixed on-disk size of a WAL record header
//.
const RecordHeaderSize = 48

// FlagPadding marks a record as a padding record: its payload is
// logically empty and its Length field counts skipped filler bytes.
const FlagPadding uint32 = 1 << 0

// RecordHeader is the fixed 48-byte prefix of every WAL record.
type RecordHeader struct {
	Sequence uint64
	Length   uint32
	Flags    uint32
	Checksum [digest.Size]byte
}

// IsSentinel reports whether h is the all-zero terminator that marks
// the logical end of the WAL stream.
func (h RecordHeader) IsSentinel() bool {
	return h.Sequence == 0 && h.Length == 0 && h.Flags == 0 && h.Checksum == [digest.Size]byte{}
}

// IsPadding reports whether h is a padding record.
func (h RecordHeader) IsPadding() bool {
	return h.Flags&FlagPadding != 0
}

// emptyPayloadChecksum is the checksum padding records carry, since a
// padding record's logical payload is empty.
var emptyPayloadChecksum = digest.Sum(nil)

// EncodeRecordHeader serializes h into an exact RecordHeaderSize buffer.
func EncodeRecordHeader(h RecordHeader) []byte {
	buf := make([]byte, RecordHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Sequence)
	binary.LittleEndian.PutUint32(buf[8:12], h.Length)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	copy(buf[16:16+digest.Size], h.Checksum[:])
	return buf
}

// DecodeRecordHeader parses a RecordHeaderSize buffer.
func DecodeRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) != RecordHeaderSize {
		return RecordHeader{}, errs.NewWal("decode_record_header", fmt.Errorf("record header size mismatch: got %d bytes", len(buf)))
	}
	var h RecordHeader
	h.Sequence = binary.LittleEndian.Uint64(buf[0:8])
	h.Length = binary.LittleEndian.Uint32(buf[8:12])
	h.Flags = binary.LittleEndian.Uint32(buf[12:16])
	copy(h.Checksum[:], buf[16:16+digest.Size])
	return h, nil
}
