// Package timeindex implements the (new) C10 time-kind segment: a
// delta-of-delta + zigzag + varint encoding of every frame's creation
// timestamp, keyed implicitly by frame id (index i holds frame i's
// timestamp). It lets a caller recover approximate insertion order and
// time-range filter frames without decoding payloads.
//
// The codec is grounded on
// encoding.TimestampDeltaEncoder/TimestampDeltaDecoder
// (encoding/ts_delta.go), repurposed from metric timestamp columns to
// frame creation timestamps.
package timeindex

import (
	"encoding/binary"
	"errors"

	"github.com/waxmem/wax/encoding"
)

// ErrTruncated is returned by Decode when the segment payload is
// shorter than its declared count requires.
var ErrTruncated = errors.New("timeindex: truncated segment")

// Encode serializes timestamps (index i = frame i's creation time, in
// milliseconds since the Unix epoch) as a time-kind segment payload: a
// little-endian u32 count followed by the delta-of-delta encoded body.
func Encode(timestampsMs []int64) []byte {
	enc := encoding.NewTimestampDeltaEncoder()
	enc.WriteSlice(timestampsMs)
	body := append([]byte(nil), enc.Bytes()...)
	enc.Finish()

	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(timestampsMs)))
	copy(buf[4:], body)
	return buf
}

// Decode parses a time-kind segment payload back into per-frame
// timestamps, in frame-id order.
func Decode(data []byte) ([]int64, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	body := data[4:]

	dec := encoding.NewTimestampDeltaDecoder()
	out := make([]int64, 0, count)
	for ts := range dec.All(body, int(count)) {
		out = append(out, ts)
	}
	if uint32(len(out)) != count {
		return nil, ErrTruncated
	}
	return out, nil
}
