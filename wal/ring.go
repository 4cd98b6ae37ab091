package wal

import (
	"io"
	"math"

	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/errs"
)

// Writer appends records to a fixed-capacity WAL ring. A Writer is not
// safe for concurrent use; the store serializes commits and appends
// under its own writer lease.
type Writer struct {
	rw io.WriterAt

	walOffset uint64
	walSize   uint64

	writePos      uint64
	checkpointPos uint64
	pendingBytes  uint64
	lastSequence  uint64

	wrapCount          uint64
	checkpointCount    uint64
	sentinelWriteCount uint64
	writeCallCount     uint64
}

// NewWriter constructs a Writer over a freshly created (all-zero) ring.
func NewWriter(rw io.WriterAt, walOffset, walSize uint64) *Writer {
	return NewWriterWithState(rw, walOffset, walSize, 0, 0, 0, 0)
}

// NewWriterWithState constructs a Writer resuming from a prior session's
// state, as recovered by Open.
func NewWriterWithState(rw io.WriterAt, walOffset, walSize, writePos, checkpointPos, pendingBytes, lastSequence uint64) *Writer {
	return &Writer{
		rw:            rw,
		walOffset:     walOffset,
		walSize:       walSize,
		writePos:      writePos,
		checkpointPos: checkpointPos,
		pendingBytes:  pendingBytes,
		lastSequence:  lastSequence,
	}
}

func (w *Writer) WritePos() uint64           { return w.writePos }
func (w *Writer) CheckpointPos() uint64      { return w.checkpointPos }
func (w *Writer) PendingBytes() uint64       { return w.pendingBytes }
func (w *Writer) LastSequence() uint64       { return w.lastSequence }
func (w *Writer) WrapCount() uint64          { return w.wrapCount }
func (w *Writer) CheckpointCount() uint64    { return w.checkpointCount }
func (w *Writer) SentinelWriteCount() uint64 { return w.sentinelWriteCount }
func (w *Writer) WriteCallCount() uint64     { return w.writeCallCount }

// additionalBytes computes the pending_bytes delta a single append of
// payloadLen bytes would incur from the current write cursor, including
// any padding record needed to reach the end of the ring, or the
// implicit skip of trailing space too small to hold even a header.
func (w *Writer) additionalBytes(payloadLen uint64) uint64 {
	recordSize := uint64(RecordHeaderSize) + payloadLen
	remaining := w.walSize - w.writePos%w.walSize
	if remaining >= recordSize {
		return recordSize
	}
	return remaining + recordSize
}

// CanAppend reports whether a single record carrying a payloadLen-byte
// payload can be appended without exceeding the ring's capacity guard
//.
func (w *Writer) CanAppend(payloadLen int) bool {
	if w.lastSequence == math.MaxUint64 {
		return false
	}
	return w.pendingBytes+w.additionalBytes(uint64(payloadLen)) <= w.walSize
}

// Append writes a single record and returns its assigned sequence.
func (w *Writer) Append(payload []byte) (uint64, error) {
	seqs, err := w.AppendBatch([][]byte{payload})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

type writeStep struct {
	offset    uint64
	data      []byte
	isPadding bool
}

// AppendBatch writes every payload as one record each, atomically: if
// any payload would overflow the ring's capacity guard or exhaust the
// sequence space, no bytes are written and no state changes.
func (w *Writer) AppendBatch(payloads [][]byte) ([]uint64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	cursor := w.writePos
	pending := w.pendingBytes
	seq := w.lastSequence
	var wraps uint64
	var steps []writeStep
	seqs := make([]uint64, len(payloads))

	for i, payload := range payloads {
		recordSize := uint64(RecordHeaderSize) + uint64(len(payload))
		remaining := w.walSize - cursor

		if remaining < recordSize {
			if remaining >= RecordHeaderSize {
				if seq == math.MaxUint64 {
					return nil, errs.NewWal("append_batch", errSequenceExhausted)
				}
				seq++
				padLen := remaining - RecordHeaderSize
				padHeader := RecordHeader{Sequence: seq, Length: uint32(padLen), Flags: FlagPadding, Checksum: emptyPayloadChecksum}
				buf := EncodeRecordHeader(padHeader)
				if padLen > 0 {
					buf = append(buf, make([]byte, padLen)...)
				}
				steps = append(steps, writeStep{offset: cursor, data: buf, isPadding: true})
			}
			pending += remaining
			cursor = 0
			wraps++
			remaining = w.walSize
		}

		if remaining < recordSize {
			return nil, errs.NewWal("append_batch", errPayloadTooLarge)
		}
		if seq == math.MaxUint64 {
			return nil, errs.NewWal("append_batch", errSequenceExhausted)
		}
		seq++
		seqs[i] = seq

		checksum := digest.Sum(payload)
		header := RecordHeader{Sequence: seq, Length: uint32(len(payload)), Checksum: checksum}
		buf := append(EncodeRecordHeader(header), payload...)
		steps = append(steps, writeStep{offset: cursor, data: buf})

		pending += recordSize
		cursor += recordSize
		if cursor == w.walSize {
			cursor = 0
			wraps++
		}

		if pending > w.walSize {
			return nil, errs.NewWal("append_batch", errCapacityExceeded)
		}
	}

	sentinelWritten := false
	remaining := w.walSize - cursor
	if remaining >= RecordHeaderSize {
		sentinel := make([]byte, RecordHeaderSize)
		last := &steps[len(steps)-1]
		if last.offset+uint64(len(last.data)) == cursor {
			last.data = append(last.data, sentinel...)
		} else {
			steps = append(steps, writeStep{offset: cursor, data: sentinel})
		}
		sentinelWritten = true
	}

	for _, step := range steps {
		if _, err := w.rw.WriteAt(step.data, int64(w.walOffset+step.offset)); err != nil {
			return nil, errs.NewWal("append_batch", err)
		}
	}

	w.writePos = cursor
	w.pendingBytes = pending
	w.lastSequence = seq
	w.wrapCount += wraps
	w.writeCallCount += uint64(len(steps))
	if sentinelWritten {
		w.sentinelWriteCount++
	}

	return seqs, nil
}

// RecordCheckpoint advances the checkpoint position to the current
// write cursor, retiring every record appended since the prior
// checkpoint.
func (w *Writer) RecordCheckpoint() {
	w.checkpointPos = w.writePos
	w.pendingBytes = 0
	w.checkpointCount++
}

// Record is a decoded WAL record whose checksum and monotonicity have
// already been verified by ScanPending.
type Record struct {
	Sequence uint64
	Payload  []byte
}

// ScanResult is the outcome of walking a WAL ring from a checkpoint.
type ScanResult struct {
	Records      []Record
	WritePos     uint64
	LastSequence uint64
	PendingBytes uint64
}

// ScanPending walks records starting at checkpointPos until a
// terminator is observed, verifying per-record checksums and strict
// sequence monotonicity. Only records whose
// sequence exceeds committedSeq are returned in Records; every record
// encountered (including already-committed ones) still advances
// WritePos/PendingBytes/LastSequence, so repeated scans from the same
// (checkpointPos, committedSeq) are idempotent.
func ScanPending(r io.ReaderAt, walOffset, walSize, checkpointPos, committedSeq uint64) (ScanResult, error) {
	if walSize == 0 {
		return ScanResult{}, nil
	}
	if walSize < RecordHeaderSize {
		return ScanResult{}, errs.NewWal("scan_pending", errRingTooSmall)
	}

	start := checkpointPos % walSize
	cursor := start
	var lastSeq uint64
	var pending uint64
	wrapped := false

	var records []Record

	for {
		remaining := walSize - cursor
		if remaining < RecordHeaderSize {
			if wrapped {
				break
			}
			pending += remaining
			cursor = 0
			wrapped = true
			if cursor == start {
				break
			}
			continue
		}

		headerBuf := make([]byte, RecordHeaderSize)
		if _, err := r.ReadAt(headerBuf, int64(walOffset+cursor)); err != nil {
			break
		}
		header, err := DecodeRecordHeader(headerBuf)
		if err != nil {
			break
		}

		if header.IsSentinel() || header.Sequence == 0 {
			break
		}
		if lastSeq != 0 && header.Sequence <= lastSeq {
			break
		}

		if header.IsPadding() {
			if header.Checksum != emptyPayloadChecksum {
				break
			}
			skip := uint64(header.Length)
			advance := uint64(RecordHeaderSize) + skip
			if cursor+advance > walSize {
				break
			}
			cursor = (cursor + advance) % walSize
			pending += advance
			lastSeq = header.Sequence
			if cursor == 0 {
				wrapped = true
			}
			if cursor == start {
				break
			}
			continue
		}

		payloadLen := uint64(header.Length)
		if payloadLen == 0 {
			break
		}
		maxPayload := walSize - RecordHeaderSize
		if payloadLen > maxPayload || payloadLen > remaining-RecordHeaderSize {
			break
		}

		payload := make([]byte, payloadLen)
		if _, err := r.ReadAt(payload, int64(walOffset+cursor+RecordHeaderSize)); err != nil {
			break
		}
		if digest.Sum(payload) != header.Checksum {
			break
		}

		if header.Sequence > committedSeq {
			records = append(records, Record{Sequence: header.Sequence, Payload: payload})
		}

		advance := uint64(RecordHeaderSize) + payloadLen
		cursor += advance
		if cursor == walSize {
			cursor = 0
			wrapped = true
		}
		pending += advance
		lastSeq = header.Sequence
		if cursor == start {
			break
		}
	}

	return ScanResult{
		Records:      records,
		WritePos:     cursor,
		LastSequence: lastSeq,
		PendingBytes: pending,
	}, nil
}

// IsTerminalMarker reports whether the record header at cursor (modulo
// walSize) is a sentinel or otherwise marks the end of live records,
// used by the replay-snapshot fast path.
func IsTerminalMarker(r io.ReaderAt, walOffset, walSize, cursor uint64) bool {
	if walSize == 0 {
		return true
	}
	normalized := cursor % walSize
	remaining := walSize - normalized
	if remaining < RecordHeaderSize {
		return false
	}
	buf := make([]byte, RecordHeaderSize)
	if _, err := r.ReadAt(buf, int64(walOffset+normalized)); err != nil {
		return false
	}
	header, err := DecodeRecordHeader(buf)
	if err != nil {
		return false
	}
	return header.IsSentinel() || header.Sequence == 0
}
