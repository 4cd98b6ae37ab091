package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waxmem/wax/waxfmt"
)

func allCodecs() map[string]Codec {
	return map[string]Codec{
		"zstd": NewZstdCompressor(),
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte(""),
		[]byte("a"),
		[]byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated"),
		make([]byte, 4096),
	}

	for name, codec := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			for _, p := range payloads {
				compressed, err := codec.Compress(p)
				require.NoError(t, err)

				// nil and []byte("") compress to the same bytes, so the
				// round trip compares content, not nil-ness.
				got, err := codec.Decompress(compressed)
				require.NoError(t, err)
				require.True(t, bytes.Equal(p, got), "round trip of %d bytes", len(p))
			}
		})
	}
}

func TestCreateCodec_Zstd(t *testing.T) {
	codec, err := CreateCodec(waxfmt.CompressionZstd, "segment")
	require.NoError(t, err)
	require.NotNil(t, codec)

	data := []byte("round trip through the factory")
	compressed, err := codec.Compress(data)
	require.NoError(t, err)
	got, err := codec.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCreateCodec_Unimplemented(t *testing.T) {
	for _, ct := range []waxfmt.CompressionType{
		waxfmt.CompressionNone,
		waxfmt.CompressionLZ4,
		waxfmt.CompressionS2,
		waxfmt.CompressionType(99),
	} {
		_, err := CreateCodec(ct, "segment")
		require.Error(t, err)
	}
}

func TestGetCodec_Builtin(t *testing.T) {
	codec, err := GetCodec(waxfmt.CompressionZstd)
	require.NoError(t, err)
	require.NotNil(t, codec)
}

func TestGetCodec_Unsupported(t *testing.T) {
	_, err := GetCodec(waxfmt.CompressionType(99))
	require.Error(t, err)
}

func TestCompressionStats_RatioAndSavings(t *testing.T) {
	s := CompressionStats{OriginalSize: 100, CompressedSize: 40}
	require.InDelta(t, 0.4, s.CompressionRatio(), 1e-9)
	require.InDelta(t, 60.0, s.SpaceSavings(), 1e-9)
}

func TestCompressionStats_ZeroOriginalSize(t *testing.T) {
	s := CompressionStats{OriginalSize: 0, CompressedSize: 0}
	require.Equal(t, 0.0, s.CompressionRatio())
}
