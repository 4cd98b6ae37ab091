package waxfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVecSegment_RoundTrip(t *testing.T) {
	vectors := [][]float32{
		{0.1, 0.2},
		{0.3, 0.4},
		{-0.5, -0.6},
	}
	frameIDs := []uint64{7, 42, 99}

	buf, err := EncodeVecSegment(2, VecSimilarityCosine, vectors, frameIDs)
	require.NoError(t, err)

	got, err := DecodeVecSegment(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(VecEncodingDenseFloat), got.Encoding)
	require.Equal(t, uint8(VecSimilarityCosine), got.Similarity)
	require.Equal(t, uint32(2), got.Dimension)
	require.Equal(t, vectors, got.Vectors)
	require.Equal(t, frameIDs, got.FrameIDs)
}

func TestVecSegment_ReservedBytesMustBeZero(t *testing.T) {
	buf, err := EncodeVecSegment(1, VecSimilarityDot, [][]float32{{1.0}}, []uint64{1})
	require.NoError(t, err)

	buf[30] = 0x01 // inside the 8 reserved header bytes

	_, err = DecodeVecSegment(buf)
	require.Error(t, err)
}

func TestVecSegment_DimensionMismatchRejected(t *testing.T) {
	_, err := EncodeVecSegment(2, VecSimilarityL2, [][]float32{{1.0}}, []uint64{1})
	require.Error(t, err)
}

func TestVecSegment_WrongMagicRejected(t *testing.T) {
	buf, err := EncodeVecSegment(1, VecSimilarityCosine, [][]float32{{1.0}}, []uint64{1})
	require.NoError(t, err)
	buf[0] = 'Z'

	_, err = DecodeVecSegment(buf)
	require.Error(t, err)
}
