// Package compress provides the segment compression codec named by
// waxfmt.CompressionType.
//
// A Wax store segment (lex, vec, or time) may be stored compressed; the
// TOC's compression enum on each segment entry selects the codec used
// to inflate it before use. store.Commit picks the codec to compress a
// freshly-built segment with; store.SegmentBytes and the store's
// time-index loader pick the matching codec to decompress before
// decoding. store.Verify(deep) does not decompress: a segment's
// checksum covers its stored (compressed) bytes, which it rehashes
// as they are.
//
// Only Zstd (github.com/klauspost/compress/zstd) is implemented: it
// gives the best ratio of the algorithms the TOC enum reserves room
// for, and every segment Wax writes today is written once and read
// rarely, so decompression speed isn't the bottleneck a faster codec
// would address. CreateCodec and GetCodec return an error for any
// other waxfmt.CompressionType, including None, so a reader built
// against a future encoder that adds one fails loudly instead of
// silently mishandling the bytes.
//
// # Usage
//
//	codec, err := compress.GetCodec(waxfmt.CompressionZstd)
//	compressed, err := codec.Compress(segmentBytes)
//	original, err := codec.Decompress(compressed)
//
// All codec implementations are safe for concurrent use.
package compress
