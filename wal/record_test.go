package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordHeader_RoundTrip(t *testing.T) {
	h := RecordHeader{Sequence: 42, Length: 9, Flags: 0, Checksum: emptyPayloadChecksum}
	buf := EncodeRecordHeader(h)
	require.Len(t, buf, RecordHeaderSize)

	got, err := DecodeRecordHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestRecordHeader_IsSentinel(t *testing.T) {
	require.True(t, RecordHeader{}.IsSentinel())
	require.False(t, RecordHeader{Sequence: 1}.IsSentinel())
}

func TestRecordHeader_IsPadding(t *testing.T) {
	require.True(t, RecordHeader{Flags: FlagPadding}.IsPadding())
	require.False(t, RecordHeader{Flags: 0}.IsPadding())
}

func TestDecodeRecordHeader_WrongSize(t *testing.T) {
	_, err := DecodeRecordHeader(make([]byte, 10))
	require.Error(t, err)
}
