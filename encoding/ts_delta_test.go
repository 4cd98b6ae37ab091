package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectAll(dec TimestampDeltaDecoder, data []byte, count int) []int64 {
	out := make([]int64, 0, count)
	for ts := range dec.All(data, count) {
		out = append(out, ts)
	}
	return out
}

func TestTimestampDeltaEncoder_WriteSlice_EmptySlice(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	enc.WriteSlice(nil)
	require.Empty(t, enc.Bytes())
}

func TestTimestampDeltaEncoder_WriteSlice_SingleTimestamp(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	ts := []int64{1_700_000_000_000}

	enc.WriteSlice(ts)
	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(ts))

	require.Equal(t, ts, got)
}

func TestTimestampDeltaEncoder_WriteSlice_RegularCadence(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	base := int64(1_700_000_000_000)
	ts := make([]int64, 10)
	for i := range ts {
		ts[i] = base + int64(i)*1000
	}

	enc.WriteSlice(ts)
	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(ts))

	require.Equal(t, ts, got)
}

func TestTimestampDeltaEncoder_WriteSlice_BurstyCadence(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	ts := []int64{
		1_700_000_000_000,
		1_700_000_000_050,
		1_700_000_050_000,
		1_700_000_050_010,
		1_700_000_900_000,
	}

	enc.WriteSlice(ts)
	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(ts))

	require.Equal(t, ts, got)
}

func TestTimestampDeltaEncoder_WriteSlice_OutOfOrderFrames(t *testing.T) {
	// Frame ids need not be inserted in creation-time order; the
	// encoder only cares about the sequence it's given.
	enc := NewTimestampDeltaEncoder()
	ts := []int64{
		1_700_000_100_000,
		1_700_000_050_000,
		1_700_000_200_000,
		1_700_000_000_000,
	}

	enc.WriteSlice(ts)
	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(ts))

	require.Equal(t, ts, got)
}

func TestTimestampDeltaEncoder_WriteSlice_MultipleCalls(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	first := []int64{1_700_000_000_000, 1_700_000_001_000, 1_700_000_002_000}
	second := []int64{1_700_000_003_000, 1_700_000_005_000}

	enc.WriteSlice(first)
	enc.WriteSlice(second)

	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(first)+len(second))

	require.Equal(t, append(first, second...), got)
}

func TestTimestampDeltaEncoder_Finish_ResetsForReuse(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	firstSegment := []int64{1_700_000_000_000, 1_700_000_001_000}
	enc.WriteSlice(firstSegment)
	enc.Finish()

	secondSegment := []int64{1_650_000_000_000, 1_650_000_010_000, 1_650_000_030_000}
	enc.WriteSlice(secondSegment)

	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), len(secondSegment))

	require.Equal(t, secondSegment, got)
}

func TestTimestampDeltaEncoder_MultipleFinishCycles(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	dec := NewTimestampDeltaDecoder()

	segments := [][]int64{
		{1_700_000_000_000, 1_700_000_001_000, 1_700_000_002_000},
		{1_600_000_000_000},
		{1_800_000_000_000, 1_800_000_100_000},
	}

	for _, seg := range segments {
		enc.WriteSlice(seg)
		got := collectAll(dec, enc.Bytes(), len(seg))
		require.Equal(t, seg, got)
		enc.Finish()
	}
}

func TestTimestampDeltaDecoder_EmptyData(t *testing.T) {
	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, nil, 0)
	require.Empty(t, got)
}

func TestTimestampDeltaDecoder_EarlyTermination(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	ts := []int64{1_700_000_000_000, 1_700_000_001_000, 1_700_000_002_000, 1_700_000_003_000}
	enc.WriteSlice(ts)

	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, enc.Bytes(), 2)

	require.Equal(t, ts[:2], got)
}

func TestTimestampDeltaDecoder_TruncatedData(t *testing.T) {
	enc := NewTimestampDeltaEncoder()
	ts := []int64{1_700_000_000_000, 1_700_000_001_000, 1_700_000_002_000}
	enc.WriteSlice(ts)

	full := enc.Bytes()
	truncated := full[:len(full)-1]

	dec := NewTimestampDeltaDecoder()
	got := collectAll(dec, truncated, len(ts))

	require.Less(t, len(got), len(ts))
}

func TestTimestampDeltaRoundTrip_EdgeCaseValues(t *testing.T) {
	cases := [][]int64{
		{0, 1, 2},
		{1, 0, -1},
		{-1_000_000, 0, 1_000_000},
		{9_223_372_036, 9_223_372_036 + 1000},
	}

	for _, ts := range cases {
		enc := NewTimestampDeltaEncoder()
		enc.WriteSlice(ts)

		dec := NewTimestampDeltaDecoder()
		got := collectAll(dec, enc.Bytes(), len(ts))

		require.Equal(t, ts, got)
	}
}
