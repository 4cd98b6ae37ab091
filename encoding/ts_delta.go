// Package encoding holds the columnar codecs used by the store's
// index segments.
package encoding

import (
	"encoding/binary"
	"iter"

	"github.com/waxmem/wax/internal/pool"
)

// TimestampDeltaEncoder encodes a column of frame creation timestamps
// (one per frame, in frame-id order) as a time-kind segment body: the
// first timestamp is stored in full, the second as a delta from it,
// and every later one as the difference between consecutive deltas,
// each zigzag+varint compressed. Frames created at a steady cadence
// collapse to a single byte apiece; bursty ingestion costs no more
// than a plain delta encoding would.
type TimestampDeltaEncoder struct {
	prevTS    int64
	prevDelta int64
	temp      [binary.MaxVarintLen64]byte
	buf       *pool.ByteBuffer
}

// NewTimestampDeltaEncoder returns an encoder ready to accept the
// timestamp column for one time-kind segment.
func NewTimestampDeltaEncoder() *TimestampDeltaEncoder {
	return &TimestampDeltaEncoder{buf: pool.GetBlobBuffer()}
}

// WriteSlice appends timestampsMs, frame creation times in frame-id
// order, to the segment body being built.
func (e *TimestampDeltaEncoder) WriteSlice(timestampsMs []int64) {
	tsLen := len(timestampsMs)
	if tsLen == 0 {
		return
	}

	estimatedSize := 6 + (tsLen-1)*2
	e.buf.Grow(estimatedSize)

	prevTS := e.prevTS
	prevDelta := e.prevDelta
	startIdx := 0

	if e.prevTS == 0 {
		ts := timestampsMs[0]
		n := binary.PutUvarint(e.temp[:], uint64(ts)) //nolint:gosec
		e.buf.MustWrite(e.temp[:n])
		prevTS = ts
		startIdx = 1
	}

	if startIdx < tsLen && prevDelta == 0 {
		ts := timestampsMs[startIdx]
		delta := ts - prevTS
		zigzag := (delta << 1) ^ (delta >> 63)
		n := binary.PutUvarint(e.temp[:], uint64(zigzag)) //nolint:gosec
		e.buf.MustWrite(e.temp[:n])
		prevTS = ts
		prevDelta = delta
		startIdx++
	}

	for _, ts := range timestampsMs[startIdx:] {
		delta := ts - prevTS
		deltaOfDelta := delta - prevDelta
		zigzag := (deltaOfDelta << 1) ^ (deltaOfDelta >> 63)
		n := binary.PutUvarint(e.temp[:], uint64(zigzag)) //nolint:gosec
		e.buf.MustWrite(e.temp[:n])
		prevTS = ts
		prevDelta = delta
	}

	e.prevTS = prevTS
	e.prevDelta = prevDelta
}

// Bytes returns the segment body written so far. The returned slice is
// valid until the next call to WriteSlice or Finish.
func (e *TimestampDeltaEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Finish releases the encoder's buffer back to its pool and clears all
// state so the encoder can be reused for the next time-kind segment.
func (e *TimestampDeltaEncoder) Finish() {
	pool.PutBlobBuffer(e.buf)
	e.buf = pool.GetBlobBuffer()
	e.prevTS = 0
	e.prevDelta = 0
}

// TimestampDeltaDecoder decodes a column encoded by
// TimestampDeltaEncoder. It is stateless and safe to reuse across
// segments.
type TimestampDeltaDecoder struct{}

// NewTimestampDeltaDecoder returns a decoder.
func NewTimestampDeltaDecoder() TimestampDeltaDecoder {
	return TimestampDeltaDecoder{}
}

// All yields the timestamps encoded in data, in frame-id order. count
// bounds how many values are produced; decoding stops early if data is
// exhausted or a varint fails to parse.
func (d TimestampDeltaDecoder) All(data []byte, count int) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		if len(data) == 0 || count <= 0 {
			return
		}

		offset := 0
		yielded := 0

		firstTS, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return
		}
		offset += n
		yielded++

		curTS := int64(firstTS) //nolint:gosec
		if !yield(curTS) {
			return
		}

		if yielded >= count {
			return
		}

		zigzag, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return
		}
		offset += n

		delta := int64(zigzag>>1) ^ -(int64(zigzag & 1)) //nolint:gosec
		curTS += delta
		yielded++

		if !yield(curTS) {
			return
		}

		prevDelta := delta

		for yielded < count && offset < len(data) {
			zigzag, n := binary.Uvarint(data[offset:])
			if n <= 0 {
				return
			}
			offset += n

			deltaOfDelta := int64(zigzag>>1) ^ -(int64(zigzag & 1)) //nolint:gosec
			delta = prevDelta + deltaOfDelta
			curTS += delta
			yielded++

			if !yield(curTS) {
				return
			}

			prevDelta = delta
		}
	}
}
