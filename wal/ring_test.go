package wal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFile is an in-memory io.ReaderAt/io.WriterAt standing in for the
// region of a Wax store file occupied by the WAL ring.
type memFile struct {
	buf []byte
}

func newMemFile(size int) *memFile {
	return &memFile{buf: make([]byte, size)}
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

// rawPayload builds an opaque n-byte payload for exercising ring
// mechanics (placement, padding, wrap, sentinels) independent of any
// particular mutation encoding.
func rawPayload(n int, fill byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestWriter_InlineSentinel(t *testing.T) {
	const walSize = 512
	f := newMemFile(walSize)
	w := NewWriter(f, 0, walSize)

	seq, err := w.Append(rawPayload(9, 0xAB))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, uint64(57), w.WritePos())
	require.Equal(t, uint64(57), w.PendingBytes())
	require.Equal(t, uint64(1), w.LastSequence())
	require.Equal(t, uint64(1), w.SentinelWriteCount())
	require.Equal(t, uint64(1), w.WriteCallCount())

	scan, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	require.Len(t, scan.Records, 1)
	require.Equal(t, uint64(1), scan.Records[0].Sequence)
	require.Equal(t, uint64(1), scan.LastSequence)
	require.Equal(t, uint64(57), scan.WritePos)
	require.Equal(t, uint64(57), scan.PendingBytes)

	require.True(t, IsTerminalMarker(f, 0, walSize, w.WritePos()))
}

func TestWriter_WrapPaddingAndCheckpoint(t *testing.T) {
	const walSize = 256
	const start = 200
	f := newMemFile(walSize)
	w := NewWriterWithState(f, 0, walSize, start, start, 0, 9)

	// remaining at cursor 200 is 56 bytes: too small for a 57-byte
	// record (48-byte header + 9-byte payload), but enough to hold a
	// padding header, so this append pads the tail and wraps.
	seq, err := w.Append(rawPayload(9, 0xCD))
	require.NoError(t, err)
	require.Equal(t, uint64(11), seq, "padding record consumes sequence 10")
	require.Equal(t, uint64(1), w.WrapCount())
	require.Equal(t, uint64(57), w.WritePos())
	require.Equal(t, uint64(113), w.PendingBytes())
	require.Equal(t, uint64(1), w.SentinelWriteCount())
	require.Equal(t, uint64(2), w.WriteCallCount(), "padding write + coalesced data/sentinel write")

	scan, err := ScanPending(f, 0, walSize, start, 9)
	require.NoError(t, err)
	require.Len(t, scan.Records, 1)
	require.Equal(t, uint64(11), scan.Records[0].Sequence)
	require.Equal(t, uint64(11), scan.LastSequence)
	require.Equal(t, uint64(57), scan.WritePos)
	require.Equal(t, uint64(113), scan.PendingBytes)

	w.RecordCheckpoint()
	require.Equal(t, uint64(57), w.CheckpointPos())
	require.Equal(t, uint64(0), w.PendingBytes())
	require.Equal(t, uint64(1), w.CheckpointCount())
}

func TestWriter_CapacityGuard(t *testing.T) {
	const walSize = 256
	f := newMemFile(walSize)
	w := NewWriterWithState(f, 0, walSize, 240, 240, 240, 5)

	require.False(t, w.CanAppend(9))
	_, err := w.Append(rawPayload(9, 0xEF))
	require.Error(t, err)
}

func TestWriter_SeparateSentinelWrite(t *testing.T) {
	const walSize = 128
	const writePos = 48
	f := newMemFile(walSize)
	w := NewWriterWithState(f, 0, walSize, writePos, writePos, 0, 0)

	// 48 + 32 == 80 bytes, exactly filling the ring from offset 48 to
	// its end: the following sentinel must land at offset 0, a
	// physically separate write.
	seq, err := w.Append(rawPayload(32, 0x11))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, uint64(0), w.WritePos())
	require.Equal(t, uint64(80), w.PendingBytes())
	require.Equal(t, uint64(1), w.SentinelWriteCount())
	require.Equal(t, uint64(2), w.WriteCallCount())

	scan, err := ScanPending(f, 0, walSize, writePos, 0)
	require.NoError(t, err)
	require.Len(t, scan.Records, 1)
	require.Equal(t, uint64(1), scan.LastSequence)
	require.Equal(t, uint64(0), scan.WritePos)
	require.Equal(t, uint64(80), scan.PendingBytes)
}

func TestWriter_AppendBatch(t *testing.T) {
	const walSize = 512
	f := newMemFile(walSize)
	w := NewWriter(f, 0, walSize)

	put1 := EncodeDeleteFrame(DeleteFrameMutation{FrameID: 5})
	put2 := EncodeDeleteFrame(DeleteFrameMutation{FrameID: 6})
	recordSize := uint64(RecordHeaderSize + len(put1))

	seqs, err := w.AppendBatch([][]byte{put1, put2})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, seqs)
	require.Equal(t, uint64(2), w.LastSequence())
	require.Equal(t, 2*recordSize, w.PendingBytes())

	scan, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	require.Len(t, scan.Records, 2)
	mut0, err := DecodeMutation(scan.Records[0].Sequence, scan.Records[0].Payload)
	require.NoError(t, err)
	mut1, err := DecodeMutation(scan.Records[1].Sequence, scan.Records[1].Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(5), mut0.Delete.FrameID)
	require.Equal(t, uint32(6), mut1.Delete.FrameID)
}

func TestWriter_AppendBatchCapacityAtomicity(t *testing.T) {
	const walSize = 128
	f := newMemFile(walSize)
	w := NewWriter(f, 0, walSize)

	_, err := w.Append(EncodeDeleteFrame(DeleteFrameMutation{FrameID: 10}))
	require.NoError(t, err)

	beforeWritePos := w.WritePos()
	beforePending := w.PendingBytes()
	beforeSeq := w.LastSequence()
	beforeCalls := w.WriteCallCount()

	_, err = w.AppendBatch([][]byte{
		EncodeDeleteFrame(DeleteFrameMutation{FrameID: 11}),
		EncodeDeleteFrame(DeleteFrameMutation{FrameID: 12}),
	})
	require.Error(t, err)

	require.Equal(t, beforeWritePos, w.WritePos())
	require.Equal(t, beforePending, w.PendingBytes())
	require.Equal(t, beforeSeq, w.LastSequence())
	require.Equal(t, beforeCalls, w.WriteCallCount())

	scan, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	require.Len(t, scan.Records, 1)
	mut, err := DecodeMutation(scan.Records[0].Sequence, scan.Records[0].Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(10), mut.Delete.FrameID)
}

func TestWriter_SequenceOverflowGuard(t *testing.T) {
	const walSize = 512
	f := newMemFile(walSize)
	w := NewWriterWithState(f, 0, walSize, 0, 0, 0, math.MaxUint64)

	require.False(t, w.CanAppend(9))

	_, err := w.Append(rawPayload(5, 0x01))
	require.Error(t, err)

	_, err = w.AppendBatch([][]byte{rawPayload(5, 0x02)})
	require.Error(t, err)

	scan, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	require.Empty(t, scan.Records)
}

func TestScanPending_Idempotent(t *testing.T) {
	const walSize = 512
	f := newMemFile(walSize)
	w := NewWriter(f, 0, walSize)
	_, err := w.AppendBatch([][]byte{rawPayload(4, 1), rawPayload(4, 2), rawPayload(4, 3)})
	require.NoError(t, err)

	first, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	second, err := ScanPending(f, 0, walSize, 0, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestIsTerminalMarker_EmptyRing(t *testing.T) {
	require.True(t, IsTerminalMarker(nil, 0, 0, 0))
}
