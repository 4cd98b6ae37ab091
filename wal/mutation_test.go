package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/waxmem/wax/waxfmt"
)

func TestPutFrameMutation_RoundTrip(t *testing.T) {
	want := PutFrameMutation{
		FrameID:           3,
		TimestampMs:       1_700_000_000_123,
		Metadata:          map[string]string{"source": "upload", "lang": "en"},
		PayloadOffset:     8192,
		PayloadLength:     256,
		CanonicalEncoding: waxfmt.CanonicalPlain,
		StoredChecksum:    [32]byte{1, 2, 3},
	}
	buf := EncodePutFrame(want)

	mut, err := DecodeMutation(1, buf)
	require.NoError(t, err)
	require.Equal(t, waxfmt.OpPutFrame, mut.Kind)
	require.NotNil(t, mut.PutFrame)
	require.Equal(t, want, *mut.PutFrame)
}

func TestDeleteFrameMutation_RoundTrip(t *testing.T) {
	buf := EncodeDeleteFrame(DeleteFrameMutation{FrameID: 99})
	mut, err := DecodeMutation(7, buf)
	require.NoError(t, err)
	require.Equal(t, uint32(99), mut.Delete.FrameID)
}

func TestSupersedeFrameMutation_RoundTrip(t *testing.T) {
	buf := EncodeSupersedeFrame(SupersedeFrameMutation{SupersededID: 1, SupersedingID: 2})
	mut, err := DecodeMutation(8, buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), mut.Supersede.SupersededID)
	require.Equal(t, uint32(2), mut.Supersede.SupersedingID)
}

func TestPutEmbeddingMutation_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	buf := EncodePutEmbedding(PutEmbeddingMutation{FrameID: 4, Dimension: uint32(len(vec)), Vector: vec})
	mut, err := DecodeMutation(9, buf)
	require.NoError(t, err)
	require.Equal(t, uint32(4), mut.PutEmbedding.FrameID)
	require.Equal(t, vec, mut.PutEmbedding.Vector)
}

func TestDecodeMutation_UnknownOpcode(t *testing.T) {
	_, err := DecodeMutation(1, []byte{0xFF})
	require.Error(t, err)
}

func TestDecodeMutation_ExcessBytes(t *testing.T) {
	buf := EncodeDeleteFrame(DeleteFrameMutation{FrameID: 1})
	buf = append(buf, 0x00)
	_, err := DecodeMutation(1, buf)
	require.Error(t, err)
}

func TestDecodeMutation_Truncated(t *testing.T) {
	_, err := DecodeMutation(1, []byte{waxfmt.OpDeleteFrame, 0x01})
	require.Error(t, err)
}

func TestMetadataEncoding_Deterministic(t *testing.T) {
	m := map[string]string{"z": "1", "a": "2", "m": "3"}
	a := EncodePutFrame(PutFrameMutation{Metadata: m, CanonicalEncoding: waxfmt.CanonicalPlain})
	b := EncodePutFrame(PutFrameMutation{Metadata: m, CanonicalEncoding: waxfmt.CanonicalPlain})
	require.Equal(t, a, b)
}
