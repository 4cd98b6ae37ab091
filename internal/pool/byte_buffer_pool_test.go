package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewByteBuffer(t *testing.T) {
	capacity := 1024
	bb := NewByteBuffer(capacity)

	require.NotNil(t, bb)
	require.NotNil(t, bb.B)
	assert.Equal(t, 0, len(bb.B), "new buffer should have zero length")
	assert.Equal(t, capacity, cap(bb.B), "new buffer should have specified capacity")
}

func TestByteBuffer_Bytes(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	bb.B = append(bb.B, []byte("hello")...)

	got := bb.Bytes()

	assert.Equal(t, []byte("hello"), got)
	assert.True(t, &bb.B[0] == &got[0], "Bytes() should return the same underlying slice")
}

func TestByteBuffer_Reset(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	bb.B = append(bb.B, []byte("some data")...)
	originalCap := cap(bb.B)

	bb.Reset()

	assert.Equal(t, 0, len(bb.B), "Reset should clear the buffer length")
	assert.Equal(t, originalCap, cap(bb.B), "Reset should preserve capacity")
}

func TestByteBuffer_MustWrite(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)

	bb.MustWrite([]byte("hello"))
	assert.Equal(t, []byte("hello"), bb.B)

	bb.MustWrite([]byte(" world"))
	assert.Equal(t, []byte("hello world"), bb.B)
}

func TestByteBuffer_MustWrite_EmptyData(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)

	bb.MustWrite([]byte{})
	assert.Equal(t, 0, len(bb.B))

	bb.MustWrite([]byte("data"))
	bb.MustWrite([]byte{})
	assert.Equal(t, []byte("data"), bb.B)
}

func TestByteBuffer_Grow_SufficientCapacity(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	originalCap := cap(bb.B)

	bb.Grow(100)

	assert.Equal(t, originalCap, cap(bb.B), "should not reallocate when capacity is sufficient")
}

func TestByteBuffer_Grow_SmallBuffer(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	bb.B = append(bb.B, make([]byte, BlobBufferDefaultSize)...)

	bb.Grow(1024)

	assert.GreaterOrEqual(t, cap(bb.B), BlobBufferDefaultSize+1024, "should have at least requested capacity")
	assert.Equal(t, BlobBufferDefaultSize, len(bb.B), "length should not change")
}

func TestByteBuffer_Grow_LargeBuffer(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	largeSize := 4*BlobBufferDefaultSize + 1024
	bb.B = make([]byte, largeSize)

	bb.Grow(2048)

	assert.GreaterOrEqual(t, cap(bb.B), largeSize+2048, "should have at least requested capacity")
}

func TestByteBuffer_Grow_PreservesData(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	testData := []byte("important data that must be preserved")
	bb.B = append(bb.B, testData...)

	bb.Grow(BlobBufferDefaultSize * 2)

	assert.Equal(t, testData, bb.B, "data should be preserved after growth")
}

func TestByteBuffer_Grow_ZeroBytes(t *testing.T) {
	bb := NewByteBuffer(BlobBufferDefaultSize)
	originalCap := cap(bb.B)

	bb.Grow(0)

	assert.Equal(t, originalCap, cap(bb.B), "Grow(0) should not change capacity")
}

func TestGetBlobBuffer(t *testing.T) {
	bb := GetBlobBuffer()

	require.NotNil(t, bb)
	require.NotNil(t, bb.B)
	assert.Equal(t, 0, len(bb.B), "pooled buffer should be empty")
	assert.GreaterOrEqual(t, cap(bb.B), BlobBufferDefaultSize, "pooled buffer should have at least default capacity")
}

func TestPutBlobBuffer_NilBuffer(t *testing.T) {
	assert.NotPanics(t, func() {
		PutBlobBuffer(nil)
	})
}

func TestPool_ResetsClearsData(t *testing.T) {
	bb := GetBlobBuffer()
	bb.B = append(bb.B, []byte("sensitive data")...)

	PutBlobBuffer(bb)

	bb2 := GetBlobBuffer()
	assert.Equal(t, 0, len(bb2.B), "buffer should be empty after retrieval from pool")
	assert.Equal(t, 0, len(bb.B), "PutBlobBuffer should reset the buffer")
}

func TestPool_MultipleGetsAndPuts(t *testing.T) {
	buffers := make([]*ByteBuffer, 10)

	for i := range buffers {
		buffers[i] = GetBlobBuffer()
		require.NotNil(t, buffers[i])
		buffers[i].MustWrite([]byte("data"))
	}

	for _, bb := range buffers {
		PutBlobBuffer(bb)
	}

	for i := 0; i < 10; i++ {
		bb := GetBlobBuffer()
		assert.Equal(t, 0, len(bb.B), "each buffer should be reset")
		PutBlobBuffer(bb)
	}
}

func TestPool_ConcurrentAccess(t *testing.T) {
	const numGoroutines = 100
	const numIterations = 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				bb := GetBlobBuffer()
				bb.MustWrite([]byte("data"))
				assert.Equal(t, 4, len(bb.B))
				PutBlobBuffer(bb)
			}
		}()
	}

	wg.Wait()
}

func TestByteBuffer_LargeDataWrite(t *testing.T) {
	bb := GetBlobBuffer()
	defer PutBlobBuffer(bb)

	largeData := make([]byte, 1024*1024)
	for i := range largeData {
		largeData[i] = byte(i % 256)
	}

	bb.MustWrite(largeData)

	assert.Equal(t, len(largeData), len(bb.B))
	assert.Equal(t, largeData, bb.B)
}

func TestByteBuffer_GrowAndWrite(t *testing.T) {
	bb := GetBlobBuffer()
	defer PutBlobBuffer(bb)

	bb.Grow(100 * 1024)
	initialCap := cap(bb.B)

	data := make([]byte, 50*1024)
	bb.MustWrite(data)

	assert.Equal(t, initialCap, cap(bb.B))
	assert.Equal(t, 50*1024, len(bb.B))
}

func TestByteBuffer_ResetAndReuse(t *testing.T) {
	bb := GetBlobBuffer()
	defer PutBlobBuffer(bb)

	bb.MustWrite([]byte("first"))
	assert.Equal(t, 5, len(bb.B))

	bb.Reset()
	assert.Equal(t, 0, len(bb.B))

	bb.MustWrite([]byte("second"))
	assert.Equal(t, []byte("second"), bb.B)
}
