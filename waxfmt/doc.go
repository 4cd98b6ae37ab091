// Package waxfmt implements the binary container formats used by a Wax
// store: the MV2S store format (header pages, footer, table of contents)
// and the MV2V dense-vector segment format.
//
// # Layout
//
// A valid MV2S file, in order:
//
//  1. Header page A at offset 0 (4096 bytes)
//  2. Header page B at offset 4096 (4096 bytes)
//  3. WAL ring beginning at offset 8192
//  4. Data region: frame payloads and segment bytes
//  5. Table of contents (TOC)
//  6. Footer (64 bytes, trailing)
//
// All integers are little-endian. Strings are length-prefixed ([u32])
// byte sequences bounded at 16 MiB; arrays have a [u32] count bounded at
// 10 million entries; blob fields are bounded at 256 MiB. Every
// multi-byte structure that is persisted carries a checksum computed
// with the checksum field itself zeroed, appended or stored separately,
// and re-verified on decode.
//
// Each structure is a fixed-layout codec: an Encode* function (for
// example EncodeHeaderPage) paired with a Decode* function that parses
// and validates the same layout.
package waxfmt
