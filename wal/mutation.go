package wal

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/waxfmt"
)

// PutFrameMutation is the decoded form of a 0x01 put_frame WAL payload
//.
type PutFrameMutation struct {
	FrameID           uint32
	TimestampMs       int64
	Metadata          map[string]string
	PayloadOffset     uint64
	PayloadLength     uint64
	CanonicalEncoding waxfmt.CanonicalEncoding
	CanonicalLength   uint64
	CanonicalChecksum [digest.Size]byte
	StoredChecksum    [digest.Size]byte
}

// DeleteFrameMutation is the decoded form of a 0x02 delete_frame payload.
type DeleteFrameMutation struct {
	FrameID uint32
}

// SupersedeFrameMutation is the decoded form of a 0x03 supersede_frame payload.
type SupersedeFrameMutation struct {
	SupersededID  uint32
	SupersedingID uint32
}

// PutEmbeddingMutation is the decoded form of a 0x04 put_embedding payload.
type PutEmbeddingMutation struct {
	FrameID   uint32
	Dimension uint32
	Vector    []float32
}

// Mutation is a decoded, opcode-tagged WAL mutation payload. Exactly one
// of the pointer fields matching Kind is non-nil.
type Mutation struct {
	Sequence uint64
	Kind     uint8

	PutFrame     *PutFrameMutation
	Delete       *DeleteFrameMutation
	Supersede    *SupersedeFrameMutation
	PutEmbedding *PutEmbeddingMutation
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendMetadata(buf []byte, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = appendU32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendString(buf, m[k])
	}
	return buf
}

func readU32(p []byte) (uint32, []byte, error) {
	if len(p) < 4 {
		return 0, nil, errTruncatedMutation
	}
	return binary.LittleEndian.Uint32(p[0:4]), p[4:], nil
}

func readU64(p []byte) (uint64, []byte, error) {
	if len(p) < 8 {
		return 0, nil, errTruncatedMutation
	}
	return binary.LittleEndian.Uint64(p[0:8]), p[8:], nil
}

func readI64(p []byte) (int64, []byte, error) {
	v, rest, err := readU64(p)
	return int64(v), rest, err
}

func readString(p []byte, maxLen int) (string, []byte, error) {
	n, rest, err := readU32(p)
	if err != nil {
		return "", nil, err
	}
	if int(n) > maxLen {
		return "", nil, errStringTooLong
	}
	if len(rest) < int(n) {
		return "", nil, errTruncatedMutation
	}
	return string(rest[:n]), rest[n:], nil
}

func readMetadata(p []byte) (map[string]string, []byte, error) {
	count, rest, err := readU32(p)
	if err != nil {
		return nil, nil, err
	}
	if count > waxfmt.MaxArrayCount {
		return nil, nil, errArrayCountTooLarge
	}
	m := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		var k, v string
		k, rest, err = readString(rest, waxfmt.MaxStringLen)
		if err != nil {
			return nil, nil, err
		}
		v, rest, err = readString(rest, waxfmt.MaxStringLen)
		if err != nil {
			return nil, nil, err
		}
		m[k] = v
	}
	return m, rest, nil
}

func readBytes(p []byte, n int) ([]byte, []byte, error) {
	if len(p) < n {
		return nil, nil, errTruncatedMutation
	}
	out := make([]byte, n)
	copy(out, p[:n])
	return out, p[n:], nil
}

// EncodePutFrame serializes a 0x01 put_frame mutation payload.
func EncodePutFrame(m PutFrameMutation) []byte {
	buf := []byte{waxfmt.OpPutFrame}
	buf = appendU32(buf, m.FrameID)
	buf = appendI64(buf, m.TimestampMs)
	buf = appendMetadata(buf, m.Metadata)
	buf = appendU64(buf, m.PayloadOffset)
	buf = appendU64(buf, m.PayloadLength)
	buf = append(buf, byte(m.CanonicalEncoding))
	buf = appendU64(buf, m.CanonicalLength)
	buf = append(buf, m.CanonicalChecksum[:]...)
	buf = append(buf, m.StoredChecksum[:]...)
	return buf
}

// EncodeDeleteFrame serializes a 0x02 delete_frame mutation payload.
func EncodeDeleteFrame(m DeleteFrameMutation) []byte {
	buf := []byte{waxfmt.OpDeleteFrame}
	return appendU32(buf, m.FrameID)
}

// EncodeSupersedeFrame serializes a 0x03 supersede_frame mutation payload.
func EncodeSupersedeFrame(m SupersedeFrameMutation) []byte {
	buf := []byte{waxfmt.OpSupersedeFrame}
	buf = appendU32(buf, m.SupersededID)
	return appendU32(buf, m.SupersedingID)
}

// EncodePutEmbedding serializes a 0x04 put_embedding mutation payload.
func EncodePutEmbedding(m PutEmbeddingMutation) []byte {
	buf := []byte{waxfmt.OpPutEmbedding}
	buf = appendU32(buf, m.FrameID)
	buf = appendU32(buf, m.Dimension)
	for _, f := range m.Vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	return buf
}

// DecodeMutation parses a raw WAL record payload (as returned in
// Record.Payload by ScanPending) into a typed Mutation. A decode
// failure here must not disturb the ring scan itself; callers fold records one at a time and may
// simply stop calling DecodeMutation on the first error while
// continuing to rely on the ScanResult's WritePos/PendingBytes, which
// ScanPending already computed independently of payload structure.
func DecodeMutation(sequence uint64, payload []byte) (Mutation, error) {
	if len(payload) < 1 {
		return Mutation{}, errs.NewWal("decode_mutation", errEmptyPayload)
	}
	opcode := payload[0]
	p := payload[1:]
	m := Mutation{Sequence: sequence, Kind: opcode}

	var err error
	switch opcode {
	case waxfmt.OpPutFrame:
		var put PutFrameMutation
		put.FrameID, p, err = readU32(p)
		if err != nil {
			break
		}
		put.TimestampMs, p, err = readI64(p)
		if err != nil {
			break
		}
		put.Metadata, p, err = readMetadata(p)
		if err != nil {
			break
		}
		put.PayloadOffset, p, err = readU64(p)
		if err != nil {
			break
		}
		put.PayloadLength, p, err = readU64(p)
		if err != nil {
			break
		}
		if len(p) < 1 {
			err = errTruncatedMutation
			break
		}
		put.CanonicalEncoding = waxfmt.CanonicalEncoding(p[0])
		p = p[1:]
		if !put.CanonicalEncoding.Valid() {
			err = fmt.Errorf("invalid canonical_encoding in put_frame mutation")
			break
		}
		put.CanonicalLength, p, err = readU64(p)
		if err != nil {
			break
		}
		var cc, sc []byte
		cc, p, err = readBytes(p, digest.Size)
		if err != nil {
			break
		}
		copy(put.CanonicalChecksum[:], cc)
		sc, p, err = readBytes(p, digest.Size)
		if err != nil {
			break
		}
		copy(put.StoredChecksum[:], sc)
		m.PutFrame = &put

	case waxfmt.OpDeleteFrame:
		var del DeleteFrameMutation
		del.FrameID, p, err = readU32(p)
		if err != nil {
			break
		}
		m.Delete = &del

	case waxfmt.OpSupersedeFrame:
		var sup SupersedeFrameMutation
		sup.SupersededID, p, err = readU32(p)
		if err != nil {
			break
		}
		sup.SupersedingID, p, err = readU32(p)
		if err != nil {
			break
		}
		m.Supersede = &sup

	case waxfmt.OpPutEmbedding:
		var put PutEmbeddingMutation
		put.FrameID, p, err = readU32(p)
		if err != nil {
			break
		}
		put.Dimension, p, err = readU32(p)
		if err != nil {
			break
		}
		if put.Dimension > waxfmt.MaxArrayCount {
			err = errArrayCountTooLarge
			break
		}
		floatBytes := int(put.Dimension) * 4
		if len(p) < floatBytes {
			err = errTruncatedMutation
			break
		}
		vec := make([]float32, put.Dimension)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[0:4]))
			p = p[4:]
		}
		put.Vector = vec
		m.PutEmbedding = &put

	default:
		err = fmt.Errorf("unknown wal opcode %#x", opcode)
	}

	if err != nil {
		return Mutation{}, errs.NewWal("decode_mutation", err)
	}
	if len(p) != 0 {
		return Mutation{}, errs.NewWal("decode_mutation", errExcessBytes)
	}
	return m, nil
}
